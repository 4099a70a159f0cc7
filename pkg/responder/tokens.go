package responder

import (
	"github.com/go-go-golems/vizthinker/pkg/tree"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter counts tokens for a piece of text.
type TokenCounter interface {
	Count(text string) (int, error)
}

type codecCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter returns a counter for model, falling back to cl100k_base when
// the model is unknown to the tokenizer.
func NewTokenCounter(model string) (TokenCounter, error) {
	if model != "" {
		if c, err := tokenizer.ForModel(tokenizer.Model(model)); err == nil {
			return &codecCounter{codec: c}, nil
		}
	}
	c, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, errors.Wrap(err, "load cl100k_base tokenizer")
	}
	return &codecCounter{codec: c}, nil
}

func (c *codecCounter) Count(text string) (int, error) {
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// TrimHistory drops the oldest exchanges until system prompt, history and
// prompt fit in maxTokens. The most recent exchange closest to the new prompt
// is kept longest. maxTokens <= 0 disables trimming.
func TrimHistory(counter TokenCounter, systemPrompt string, history []tree.Exchange, prompt string, maxTokens int) ([]tree.Exchange, error) {
	if maxTokens <= 0 || len(history) == 0 {
		return history, nil
	}

	fixed := 0
	for _, s := range []string{systemPrompt, prompt} {
		n, err := counter.Count(s)
		if err != nil {
			return nil, errors.Wrap(err, "count tokens")
		}
		fixed += n
	}

	costs := make([]int, len(history))
	total := fixed
	for i, ex := range history {
		p, err := counter.Count(ex.Prompt)
		if err != nil {
			return nil, errors.Wrap(err, "count tokens")
		}
		r, err := counter.Count(ex.Response)
		if err != nil {
			return nil, errors.Wrap(err, "count tokens")
		}
		costs[i] = p + r
		total += costs[i]
	}

	start := 0
	for total > maxTokens && start < len(history) {
		total -= costs[start]
		start++
	}
	if start > 0 {
		log.Debug().
			Int("dropped", start).
			Int("kept", len(history)-start).
			Int("max_tokens", maxTokens).
			Msg("Trimmed conversation history to fit context")
	}
	return history[start:], nil
}
