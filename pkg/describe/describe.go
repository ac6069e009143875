/*
Package describe generates thesis descriptions via an external
chat-completions service. Generation is a convenience: any failure falls
back to a canned description derived from the file name, so callers never
have to handle a generation error.
*/
package describe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// ErrNotConfigured is returned when the service API key is absent.
var ErrNotConfigured = errors.New("description service not configured")

const (
	defaultModel   = "asi1-mini"
	defaultTimeout = 30 * time.Second
	// maxLength bounds the returned description; longer completions are
	// clipped with an ellipsis.
	maxLength = 300
	// previewLimit bounds how much of the document is quoted in the prompt.
	previewLimit = 1000
)

type (
	// Config contains description service parameters.
	Config struct {
		APIKey   string
		Endpoint string
		// Model to request, defaultModel when empty.
		Model string
		// Client is the HTTP client to use, a default one is created when
		// nil.
		Client *http.Client
		// Log is used to record swallowed generation failures.
		Log *zap.Logger
	}

	// Client requests description generation.
	Client struct {
		cfg Config
		log *zap.Logger
	}

	chatRequest struct {
		Model       string        `json:"model"`
		Messages    []chatMessage `json:"messages"`
		MaxTokens   int           `json:"max_tokens"`
		Temperature float64       `json:"temperature"`
	}

	chatMessage struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	chatResponse struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
)

// New returns a describe Client for the given Config.
func New(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: defaultTimeout}
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{cfg: cfg, log: log}
}

// Describe produces a short academic-style description of the named
// document. Any remote failure is logged and replaced with Fallback(name),
// so the returned description is always usable; ErrNotConfigured is the
// only error surfaced, the caller may want to hide the feature entirely
// then.
func (c *Client) Describe(ctx context.Context, name, mime string, preview []byte) (string, error) {
	if c.cfg.APIKey == "" {
		return "", fmt.Errorf("%w: API key is missing", ErrNotConfigured)
	}
	desc, err := c.request(ctx, name, mime, preview)
	if err != nil {
		c.log.Warn("description generation failed, using fallback",
			zap.String("file", name), zap.Error(err))
		return Fallback(name), nil
	}
	return desc, nil
}

// Fallback is the description used when generation fails or is not
// configured.
func Fallback(name string) string {
	return "Research document: " + name
}

func (c *Client) request(ctx context.Context, name, mime string, preview []byte) (string, error) {
	content := string(preview)
	if len(content) > previewLimit {
		content = content[:previewLimit] + "..."
	}
	prompt := fmt.Sprintf(
		"Analyze the following file and generate a concise, accurate description of its content. "+
			"The description should be between 200-300 characters and should focus on the main topic, "+
			"purpose, or content of the file. Be factual and avoid speculation.\n\n"+
			"File name: %s\nFile type: %s\nFile content preview: %s\n\n"+
			"Generate a professional, academic-style description that accurately represents the file's content:",
		name, mime, content)

	raw, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   150,
		Temperature: 0.3,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.cfg.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("request failed: HTTP %d", resp.StatusCode)
	}
	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("undecodable response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("no completion choices returned")
	}
	desc := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if desc == "" {
		return "", errors.New("empty completion")
	}
	if len(desc) > maxLength {
		cut := maxLength - 3
		for cut > 0 && !utf8.RuneStart(desc[cut]) {
			cut--
		}
		desc = desc[:cut] + "..."
	}
	return desc, nil
}
