package responder

import (
	"context"
	"io"
	"net"
	"net/url"
	"strings"

	"github.com/go-go-golems/vizthinker/pkg/security"
	genai "github.com/google/generative-ai-go/genai"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiResponder calls Google's Gemini API. The client is created per call
// and closed afterwards.
type GeminiResponder struct {
	apiKey       string
	baseURL      string
	model        string
	systemPrompt string
	maxTokens    int
	counter      TokenCounter
}

func NewGeminiResponder(apiKey, baseURL, model string, cfg Config) (*GeminiResponder, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if baseURL != "" {
		policy := security.ProviderURLPolicy{AllowLocal: cfg.AllowLocalBaseURL}
		if err := policy.Check(baseURL); err != nil {
			return nil, err
		}
	}
	// no public Gemini tokenizer, the thread is budgeted with cl100k
	counter, err := NewTokenCounter("")
	if err != nil {
		return nil, err
	}
	return &GeminiResponder{
		apiKey:       apiKey,
		baseURL:      baseURL,
		model:        model,
		systemPrompt: cfg.SystemPrompt,
		maxTokens:    cfg.MaxContextTokens,
		counter:      counter,
	}, nil
}

func (g *GeminiResponder) Respond(ctx context.Context, req *Request) (string, error) {
	modelName := g.model
	if req.Model != "" {
		modelName = req.Model
	}

	turns, err := prepareTurns(g.counter, g.systemPrompt, g.maxTokens, modelName, req)
	if err != nil {
		return "", err
	}
	system, history, prompt := toGeminiContents(turns)

	opts := []option.ClientOption{option.WithAPIKey(g.apiKey)}
	if g.baseURL != "" {
		opts = append(opts, option.WithEndpoint(grpcEndpoint(g.baseURL)))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return "", errors.Wrap(err, "failed to create gemini client")
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close gemini client")
		}
	}()

	model := client.GenerativeModel(modelName)
	model.SystemInstruction = system
	cs := model.StartChat()
	cs.History = history

	log.Debug().Str("model", modelName).Int("history", len(history)).Msg("Calling gemini")
	iter := cs.SendMessageStream(ctx, genai.Text(prompt))

	var sb strings.Builder
	chunkCount := 0
	for {
		resp, err := iter.Next()
		if err == iterator.Done || errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Error().Err(err).Int("chunks_received", chunkCount).Msg("Gemini stream receive failed")
			return "", errors.Wrap(err, "gemini generate content")
		}
		chunkCount++
		if resp == nil {
			continue
		}
		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, p := range cand.Content.Parts {
				if text, ok := p.(genai.Text); ok {
					sb.WriteString(string(text))
				}
			}
		}
	}
	log.Debug().Str("model", modelName).Int("chunks_received", chunkCount).Msg("Gemini stream completed")

	if sb.Len() == 0 {
		return "", errors.New("gemini returned no text")
	}
	return sb.String(), nil
}

// toGeminiContents splits turns into the system instruction, the chat history
// and the final user prompt. Gemini calls the assistant role "model".
func toGeminiContents(turns []Turn) (*genai.Content, []*genai.Content, string) {
	var system *genai.Content
	var history []*genai.Content
	prompt := ""

	last := len(turns) - 1
	for last >= 0 && turns[last].Role != RoleUser {
		last--
	}

	for i, t := range turns {
		switch {
		case t.Role == RoleSystem:
			if system == nil {
				system = &genai.Content{}
			}
			system.Parts = append(system.Parts, genai.Text(t.Content))
		case i == last:
			prompt = t.Content
		case t.Role == RoleAssistant:
			history = append(history, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(t.Content)}})
		default:
			history = append(history, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(t.Content)}})
		}
	}
	return system, history, prompt
}

// grpcEndpoint turns a base URL into the host:port the gRPC client dials.
func grpcEndpoint(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return baseURL
	}
	if u.Port() != "" {
		return u.Host
	}
	port := "443"
	if u.Scheme == "http" {
		port = "80"
	}
	return net.JoinHostPort(u.Hostname(), port)
}
