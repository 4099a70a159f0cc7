package responder

import (
	"context"

	"github.com/go-go-golems/vizthinker/pkg/security"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultOpenAIModel = go_openai.GPT3Dot5Turbo
	DefaultXBaseURL    = "https://api.x.ai/v1"
	DefaultXModel      = "grok-beta"
)

// OpenAIResponder talks to any OpenAI-compatible chat completion endpoint.
type OpenAIResponder struct {
	client       *go_openai.Client
	model        string
	systemPrompt string
	maxTokens    int
	counter      TokenCounter
}

func NewOpenAIResponder(apiKey, baseURL, model string, cfg Config) (*OpenAIResponder, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	config := go_openai.DefaultConfig(apiKey)
	if baseURL != "" {
		policy := security.ProviderURLPolicy{AllowLocal: cfg.AllowLocalBaseURL}
		if err := policy.Check(baseURL); err != nil {
			return nil, err
		}
		config.BaseURL = baseURL
	}
	counter, err := NewTokenCounter(model)
	if err != nil {
		return nil, err
	}
	return &OpenAIResponder{
		client:       go_openai.NewClientWithConfig(config),
		model:        model,
		systemPrompt: cfg.SystemPrompt,
		maxTokens:    cfg.MaxContextTokens,
		counter:      counter,
	}, nil
}

func (o *OpenAIResponder) Respond(ctx context.Context, req *Request) (string, error) {
	model := o.model
	if req.Model != "" {
		model = req.Model
	}

	turns, err := prepareTurns(o.counter, o.systemPrompt, o.maxTokens, model, req)
	if err != nil {
		return "", err
	}
	messages := make([]go_openai.ChatCompletionMessage, 0, len(turns))
	for _, t := range turns {
		messages = append(messages, go_openai.ChatCompletionMessage{
			Role:    string(t.Role),
			Content: t.Content,
		})
	}

	log.Debug().Str("model", model).Int("messages", len(messages)).Msg("Calling chat completion")
	resp, err := o.client.CreateChatCompletion(ctx, go_openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	})
	if err != nil {
		return "", errors.Wrap(err, "chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	log.Debug().
		Str("model", model).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Msg("Chat completion done")
	return resp.Choices[0].Message.Content, nil
}

// prepareTurns renders the system prompt, trims the thread to the context
// budget and returns the turns to send.
func prepareTurns(counter TokenCounter, systemTemplate string, maxTokens int, model string, req *Request) ([]Turn, error) {
	systemPrompt, err := RenderSystemPrompt(systemTemplate, PromptData{
		IsBranch: req.IsBranch,
		Depth:    len(req.History),
		Model:    model,
	})
	if err != nil {
		return nil, err
	}
	history, err := TrimHistory(counter, systemPrompt, req.History, req.Prompt, maxTokens)
	if err != nil {
		return nil, err
	}
	return BuildTurns(systemPrompt, history, req.Prompt), nil
}
