package describe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func startService(t *testing.T, handler http.HandlerFunc) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		APIKey:   "test-key",
		Endpoint: srv.URL,
		Log:      zaptest.NewLogger(t),
	})
}

func completion(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{"message": map[string]string{"content": content}}},
	})
	return string(b)
}

func TestDescribe(t *testing.T) {
	var req chatRequest
	c := startService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_, _ = w.Write([]byte(completion("  A rigorous treatment of graph rewriting systems.  ")))
	})

	desc, err := c.Describe(context.Background(), "thesis.pdf", "application/pdf", []byte("intro text"))
	require.NoError(t, err)
	assert.Equal(t, "A rigorous treatment of graph rewriting systems.", desc)

	assert.Equal(t, "asi1-mini", req.Model)
	assert.Equal(t, 150, req.MaxTokens)
	assert.InDelta(t, 0.3, req.Temperature, 1e-9)
	require.Len(t, req.Messages, 1)
	assert.Contains(t, req.Messages[0].Content, "thesis.pdf")
	assert.Contains(t, req.Messages[0].Content, "application/pdf")
	assert.Contains(t, req.Messages[0].Content, "intro text")
}

func TestDescribeClipsLongCompletion(t *testing.T) {
	c := startService(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(completion(strings.Repeat("x", 500))))
	})
	desc, err := c.Describe(context.Background(), "a.pdf", "application/pdf", nil)
	require.NoError(t, err)
	assert.Len(t, desc, 300)
	assert.True(t, strings.HasSuffix(desc, "..."))
}

func TestDescribeClipsOnRuneBoundary(t *testing.T) {
	// The leading ASCII byte shifts the three-byte rune grid so that a
	// blind cut at byte 297 lands in the middle of a CJK rune.
	c := startService(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(completion("x" + strings.Repeat("述", 200))))
	})
	desc, err := c.Describe(context.Background(), "a.pdf", "application/pdf", nil)
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(desc))
	assert.True(t, strings.HasSuffix(desc, "..."))
	assert.LessOrEqual(t, len(desc), 300)
}

func TestDescribeClipsLongPreview(t *testing.T) {
	var prompt string
	c := startService(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		prompt = req.Messages[0].Content
		_, _ = w.Write([]byte(completion("ok")))
	})
	_, err := c.Describe(context.Background(), "a.pdf", "application/pdf",
		[]byte(strings.Repeat("y", 5000)))
	require.NoError(t, err)
	assert.NotContains(t, prompt, strings.Repeat("y", 1001))
	assert.Contains(t, prompt, strings.Repeat("y", 1000)+"...")
}

func TestDescribeFallsBack(t *testing.T) {
	for name, handler := range map[string]http.HandlerFunc{
		"HTTP error": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		},
		"no choices": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices": []}`))
		},
		"empty completion": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(completion("   ")))
		},
		"garbage": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{nope`))
		},
	} {
		t.Run(name, func(t *testing.T) {
			c := startService(t, handler)
			desc, err := c.Describe(context.Background(), "thesis.pdf", "application/pdf", nil)
			require.NoError(t, err)
			assert.Equal(t, Fallback("thesis.pdf"), desc)
		})
	}
}

func TestDescribeNotConfigured(t *testing.T) {
	c := New(Config{})
	_, err := c.Describe(context.Background(), "a.pdf", "application/pdf", nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestFallback(t *testing.T) {
	assert.Equal(t, "Research document: thesis.pdf", Fallback("thesis.pdf"))
}
