package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tmengine/internal/domain"
)

func entry(id int64, target string) *domain.TmEntry {
	return &domain.TmEntry{ID: id, SourceHash: "abc", TargetLang: "de", TargetText: target, UsageCount: 1}
}

func TestMemory_GetPut(t *testing.T) {
	c := NewMemory(time.Hour)

	_, ok := c.Get("abc", "de")
	assert.False(t, ok, "empty cache must miss")

	c.Put("abc", "de", entry(1, "Hallo Welt"))

	got, ok := c.Get("abc", "de")
	assert.True(t, ok)
	assert.Equal(t, "Hallo Welt", got.TargetText)

	// Same hash, different target language is a distinct key.
	_, ok = c.Get("abc", "fr")
	assert.False(t, ok)
}

func TestMemory_Invalidate(t *testing.T) {
	c := NewMemory(0)
	c.Put("abc", "de", entry(1, "Hallo"))
	c.Put("abc", "fr", entry(2, "Bonjour"))

	c.Invalidate("abc", "de")

	_, ok := c.Get("abc", "de")
	assert.False(t, ok)
	_, ok = c.Get("abc", "fr")
	assert.True(t, ok, "invalidation must be scoped to one key")
}

func TestMemory_Clear(t *testing.T) {
	c := NewMemory(0)
	c.Put("abc", "de", entry(1, "Hallo"))
	c.Put("def", "de", entry(2, "Welt"))

	c.Clear()

	assert.Equal(t, 0, c.Len())
	_, ok := c.Get("abc", "de")
	assert.False(t, ok)
}

func TestMemory_TTLExpiry(t *testing.T) {
	c := NewMemory(50 * time.Millisecond)
	c.Put("abc", "de", entry(1, "Hallo"))

	_, ok := c.Get("abc", "de")
	assert.True(t, ok)

	time.Sleep(80 * time.Millisecond)

	_, ok = c.Get("abc", "de")
	assert.False(t, ok, "entry must expire after TTL")
}

func TestMemory_Overwrite(t *testing.T) {
	c := NewMemory(0)
	c.Put("abc", "de", entry(1, "alt"))
	c.Put("abc", "de", entry(1, "neu"))

	got, ok := c.Get("abc", "de")
	assert.True(t, ok)
	assert.Equal(t, "neu", got.TargetText)
	assert.Equal(t, 1, c.Len())
}
