package responder

import (
	"context"
	"strings"

	"github.com/jmorganca/ollama/api"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const DefaultOllamaModel = "llama2"

// OllamaResponder uses a local ollama server, located through OLLAMA_HOST.
type OllamaResponder struct {
	client       *api.Client
	model        string
	systemPrompt string
	maxTokens    int
	counter      TokenCounter
}

func NewOllamaResponder(model string, cfg Config) (*OllamaResponder, error) {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, errors.Wrap(err, "create ollama client")
	}
	counter, err := NewTokenCounter("")
	if err != nil {
		return nil, err
	}
	return &OllamaResponder{
		client:       client,
		model:        model,
		systemPrompt: cfg.SystemPrompt,
		maxTokens:    cfg.MaxContextTokens,
		counter:      counter,
	}, nil
}

func (o *OllamaResponder) Respond(ctx context.Context, req *Request) (string, error) {
	model := o.model
	if req.Model != "" {
		model = req.Model
	}

	turns, err := prepareTurns(o.counter, o.systemPrompt, o.maxTokens, model, req)
	if err != nil {
		return "", err
	}

	stream := true
	chatReq := &api.ChatRequest{
		Model:    model,
		Messages: toOllamaMessages(turns),
		Stream:   &stream,
	}

	var sb strings.Builder
	err = o.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		if resp.Done {
			return nil
		}
		sb.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", errors.Wrap(err, "ollama chat")
	}
	log.Debug().Str("model", model).Int("length", sb.Len()).Msg("Ollama chat done")
	return sb.String(), nil
}

func toOllamaMessages(turns []Turn) []api.Message {
	ret := make([]api.Message, 0, len(turns))
	for _, t := range turns {
		ret = append(ret, api.Message{
			Role:    string(t.Role),
			Content: t.Content,
		})
	}
	return ret
}
