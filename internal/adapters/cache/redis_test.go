package cache

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedis_GetHit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()
	c := NewRedisFromClient(db, time.Hour, "test:")

	want := entry(7, "Hallo Welt")
	raw, err := json.Marshal(want)
	require.NoError(t, err)
	mock.ExpectGet("test:abc:de").SetVal(string(raw))

	got, ok := c.Get("abc", "de")
	require.True(t, ok)
	assert.Equal(t, int64(7), got.ID)
	assert.Equal(t, "Hallo Welt", got.TargetText)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedis_GetMiss(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()
	c := NewRedisFromClient(db, time.Hour, "test:")

	mock.ExpectGet("test:abc:de").RedisNil()

	_, ok := c.Get("abc", "de")
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedis_Put(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()
	c := NewRedisFromClient(db, time.Hour, "test:")

	e := entry(7, "Hallo Welt")
	raw, err := json.Marshal(e)
	require.NoError(t, err)
	mock.ExpectSet("test:abc:de", raw, time.Hour).SetVal("OK")

	c.Put("abc", "de", e)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedis_Invalidate(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()
	c := NewRedisFromClient(db, 0, "test:")

	mock.ExpectDel("test:abc:de").SetVal(1)

	c.Invalidate("abc", "de")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedis_ErrorIsMiss(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()
	c := NewRedisFromClient(db, 0, "test:")

	mock.ExpectGet("test:abc:de").SetErr(assert.AnError)

	_, ok := c.Get("abc", "de")
	assert.False(t, ok, "redis errors must degrade to a cache miss")
}
