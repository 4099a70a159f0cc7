package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-go-golems/vizthinker/pkg/security"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultClaudeBaseURL   = "https://api.anthropic.com"
	DefaultClaudeModel     = "claude-3-5-haiku-latest"
	DefaultClaudeMaxTokens = 1024
	claudeAPIVersion       = "2023-06-01"
)

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeRequest struct {
	Model     string          `json:"model"`
	Messages  []claudeMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens"`
	System    string          `json:"system,omitempty"`
	Stream    bool            `json:"stream"`
}

type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type claudeResponse struct {
	ID         string          `json:"id"`
	Content    []claudeContent `json:"content"`
	Model      string          `json:"model"`
	StopReason string          `json:"stop_reason,omitempty"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type claudeErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// ClaudeResponder calls Anthropic's Messages API.
type ClaudeResponder struct {
	httpClient   *http.Client
	apiKey       string
	baseURL      string
	model        string
	systemPrompt string
	maxTokens    int
	counter      TokenCounter
}

func NewClaudeResponder(apiKey, baseURL, model string, cfg Config) (*ClaudeResponder, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if baseURL == "" {
		baseURL = DefaultClaudeBaseURL
	}
	policy := security.ProviderURLPolicy{AllowLocal: cfg.AllowLocalBaseURL}
	if err := policy.Check(baseURL); err != nil {
		return nil, err
	}
	counter, err := NewTokenCounter("")
	if err != nil {
		return nil, err
	}
	return &ClaudeResponder{
		httpClient:   &http.Client{},
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		model:        model,
		systemPrompt: cfg.SystemPrompt,
		maxTokens:    cfg.MaxContextTokens,
		counter:      counter,
	}, nil
}

func (c *ClaudeResponder) Respond(ctx context.Context, req *Request) (string, error) {
	model := c.model
	if req.Model != "" {
		model = req.Model
	}

	turns, err := prepareTurns(c.counter, c.systemPrompt, c.maxTokens, model, req)
	if err != nil {
		return "", err
	}
	body := claudeRequest{Model: model, MaxTokens: DefaultClaudeMaxTokens}
	for _, t := range turns {
		if t.Role == RoleSystem {
			body.System = t.Content
			continue
		}
		body.Messages = append(body.Messages, claudeMessage{Role: string(t.Role), Content: t.Content})
	}

	resp, err := c.sendMessage(ctx, &body)
	if err != nil {
		return "", err
	}
	log.Debug().
		Str("model", resp.Model).
		Str("stop_reason", resp.StopReason).
		Int("input_tokens", resp.Usage.InputTokens).
		Int("output_tokens", resp.Usage.OutputTokens).
		Msg("Claude message done")

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("claude returned no text")
	}
	return sb.String(), nil
}

func (c *ClaudeResponder) sendMessage(ctx context.Context, req *claudeRequest) (*claudeResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", claudeAPIVersion)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "claude request")
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading claude response")
	}

	if resp.StatusCode != http.StatusOK {
		var errorResp claudeErrorResponse
		if err := json.Unmarshal(respBody, &errorResp); err != nil || errorResp.Error.Message == "" {
			return nil, errors.Errorf("claude returned status %d", resp.StatusCode)
		}
		return nil, errors.Errorf("claude: %s", errorResp.Error.Message)
	}

	var messageResp claudeResponse
	if err := json.Unmarshal(respBody, &messageResp); err != nil {
		return nil, errors.Wrap(err, "decoding claude response")
	}
	return &messageResp, nil
}
