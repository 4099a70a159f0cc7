// Package responder produces the assistant reply for a new prompt, given the
// thread of exchanges leading to its parent node.
package responder

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-go-golems/vizthinker/pkg/tree"
	"github.com/pkg/errors"
)

const (
	ProviderGoogle    = "google"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderX         = "x"
	ProviderOllama    = "ollama"
	ProviderEcho      = "echo"
)

// ErrMissingAPIKey is returned when the selected provider has no key configured.
var ErrMissingAPIKey = errors.New("API key not set")

// ErrUnknownProvider is returned for provider names the registry cannot build.
var ErrUnknownProvider = errors.New("unknown provider")

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Turn struct {
	Role    Role
	Content string
}

// Request is one generation call. History is the root-first thread ending at
// the parent of the new node; it is empty for a new root.
type Request struct {
	Prompt   string
	History  []tree.Exchange
	IsBranch bool
	Model    string
}

type Responder interface {
	Respond(ctx context.Context, req *Request) (string, error)
}

type Config struct {
	Provider          string        `mapstructure:"provider"`
	Model             string        `mapstructure:"model"`
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxContextTokens  int           `mapstructure:"max_context_tokens"`
	SystemPrompt      string        `mapstructure:"system_prompt"`
	// AllowLocalBaseURL lets BaseURL use plain http or a local network
	// address, for self-hosted OpenAI-compatible servers.
	AllowLocalBaseURL bool          `mapstructure:"allow_local_base_url"`
}

func DefaultConfig() Config {
	return Config{
		Provider:         ProviderEcho,
		Timeout:          30 * time.Second,
		MaxContextTokens: 8000,
		SystemPrompt:     DefaultSystemPrompt,
	}
}

// EchoResponder answers without calling out. It is used for local runs and
// tests.
type EchoResponder struct{}

func (EchoResponder) Respond(ctx context.Context, req *Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString("echo: ")
	sb.WriteString(req.Prompt)
	if len(req.History) > 0 {
		sb.WriteString(" (after ")
		sb.WriteString(strconv.Itoa(len(req.History)))
		sb.WriteString(" exchanges)")
	}
	return sb.String(), nil
}

// BuildTurns flattens the system prompt, the thread and the new prompt into
// chat turns.
func BuildTurns(systemPrompt string, history []tree.Exchange, prompt string) []Turn {
	turns := make([]Turn, 0, 2*len(history)+2)
	if systemPrompt != "" {
		turns = append(turns, Turn{Role: RoleSystem, Content: systemPrompt})
	}
	for _, ex := range history {
		turns = append(turns,
			Turn{Role: RoleUser, Content: ex.Prompt},
			Turn{Role: RoleAssistant, Content: ex.Response},
		)
	}
	return append(turns, Turn{Role: RoleUser, Content: prompt})
}
