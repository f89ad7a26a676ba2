// Package httpclient talks to an OpenAI-compatible chat completion API and
// turns it into a machine-translation provider.
package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"tmengine/internal/ports"
)

const defaultTimeout = 30 * time.Second

type Client struct {
	apiKey  string
	baseURL string
	model   string
	http    *resty.Client
}

func New(baseURL, apiKey, model string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		http:    resty.New().SetTimeout(timeout),
	}
}

var _ ports.Provider = (*Client)(nil)

const systemPrompt = "You are a professional video game localizer. Translate the user's " +
	"segment preserving every placeholder (such as {Name}, %s or <b>) exactly as written. " +
	"Respond with a JSON object: {\"translation\": \"...\"}."

// Translate sends one segment through the chat endpoint. The response is
// requested as JSON but the parser tolerates models that ignore that.
func (c *Client) Translate(ctx context.Context, p ports.TranslateParams) (ports.TranslateResult, error) {
	model := p.Model
	if model == "" {
		model = c.model
	}
	user := fmt.Sprintf("Translate from %s to %s", p.SourceLang, p.TargetLang)
	if p.Context != "" {
		user += fmt.Sprintf(" (context: %s)", p.Context)
	}
	user += ":\n" + p.SourceText

	body := map[string]any{
		"model": model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": user},
		},
		"temperature":     0.2,
		"response_format": map[string]string{"type": "json_object"},
	}
	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	rr, err := c.http.R().SetContext(ctx).
		SetHeader("Authorization", "Bearer "+c.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&resp).
		Post(c.baseURL + "/chat/completions")
	if err != nil {
		return ports.TranslateResult{}, err
	}
	if rr.IsError() {
		return ports.TranslateResult{}, fmt.Errorf("translate: %s; body: %s", rr.Status(), abbreviate(rr.String(), 500))
	}
	if len(resp.Choices) == 0 {
		return ports.TranslateResult{}, fmt.Errorf("translate: no choices returned")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	tr, err := extractTranslation(content)
	if err != nil {
		return ports.TranslateResult{}, err
	}
	return ports.TranslateResult{Translation: tr, Raw: content}, nil
}

// Test verifies connectivity and credentials against the models endpoint.
func (c *Client) Test(ctx context.Context) error {
	rr, err := c.http.R().SetContext(ctx).
		SetHeader("Authorization", "Bearer "+c.apiKey).
		Get(c.baseURL + "/models")
	if err != nil {
		return err
	}
	if rr.IsError() {
		return fmt.Errorf("provider test: %s; body: %s", rr.Status(), abbreviate(rr.String(), 500))
	}
	return nil
}

var translationRE = regexp.MustCompile(`(?s)"translation"\s*:\s*"(.*?)"`)

// extractTranslation pulls the translated text out of a model response that
// may be clean JSON, fenced JSON, or plain text from a model that ignored
// the response format.
func extractTranslation(content string) (string, error) {
	s := strings.TrimSpace(content)
	if idx := strings.Index(s, "```"); idx >= 0 {
		rest := strings.TrimPrefix(s[idx+3:], "json")
		if j := strings.Index(rest, "```"); j >= 0 {
			s = strings.TrimSpace(rest[:j])
		}
	}
	var obj struct {
		Translation string `json:"translation"`
	}
	if err := json.Unmarshal([]byte(s), &obj); err == nil && obj.Translation != "" {
		return obj.Translation, nil
	}
	if m := translationRE.FindStringSubmatch(s); len(m) == 2 {
		return unescape(m[1]), nil
	}
	if i := strings.Index(s, "{"); i >= 0 {
		if j := strings.LastIndex(s, "}"); j > i {
			inner := s[i : j+1]
			if err := json.Unmarshal([]byte(inner), &obj); err == nil && obj.Translation != "" {
				return obj.Translation, nil
			}
		}
	}
	if s != "" && !strings.Contains(s, "{") {
		return s, nil
	}
	return "", fmt.Errorf("unparseable provider response: %s", abbreviate(s, 500))
}

func unescape(s string) string {
	s = strings.ReplaceAll(s, `\n`, "\n")
	return strings.ReplaceAll(s, `\"`, `"`)
}

func abbreviate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
