package responder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-go-golems/vizthinker/pkg/tree"
	genai "github.com/google/generative-ai-go/genai"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wordCounter struct{}

func (wordCounter) Count(text string) (int, error) {
	return len(strings.Fields(text)), nil
}

func history() []tree.Exchange {
	return []tree.Exchange{
		{Prompt: "one two", Response: "three four"},
		{Prompt: "five", Response: "six"},
		{Prompt: "seven", Response: "eight"},
	}
}

func TestBuildTurns(t *testing.T) {
	turns := BuildTurns("sys", history()[:1], "next")
	require.Len(t, turns, 4)
	assert.Equal(t, Turn{Role: RoleSystem, Content: "sys"}, turns[0])
	assert.Equal(t, Turn{Role: RoleUser, Content: "one two"}, turns[1])
	assert.Equal(t, Turn{Role: RoleAssistant, Content: "three four"}, turns[2])
	assert.Equal(t, Turn{Role: RoleUser, Content: "next"}, turns[3])

	turns = BuildTurns("", nil, "root")
	assert.Equal(t, []Turn{{Role: RoleUser, Content: "root"}}, turns)
}

func TestRenderSystemPrompt(t *testing.T) {
	branch, err := RenderSystemPrompt(DefaultSystemPrompt, PromptData{IsBranch: true, Depth: 2})
	require.NoError(t, err)
	assert.Contains(t, branch, "alternative direction")

	cont, err := RenderSystemPrompt(DefaultSystemPrompt, PromptData{Depth: 2})
	require.NoError(t, err)
	assert.Contains(t, cont, "continuing the conversation")

	root, err := RenderSystemPrompt(DefaultSystemPrompt, PromptData{})
	require.NoError(t, err)
	assert.Contains(t, root, "start of a new conversation")

	upper, err := RenderSystemPrompt(`{{ "model" | upper }} {{ .Model }}`, PromptData{Model: "m1"})
	require.NoError(t, err)
	assert.Equal(t, "MODEL m1", upper)

	_, err = RenderSystemPrompt(`{{ .Missing`, PromptData{})
	assert.Error(t, err)
}

func TestTrimHistory(t *testing.T) {
	// fixed cost: "sys" + "q" = 2; exchanges cost 4, 2, 2.
	got, err := TrimHistory(wordCounter{}, "sys", history(), "q", 100)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = TrimHistory(wordCounter{}, "sys", history(), "q", 6)
	require.NoError(t, err)
	assert.Equal(t, history()[1:], got)

	got, err = TrimHistory(wordCounter{}, "sys", history(), "q", 2)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = TrimHistory(wordCounter{}, "sys", history(), "q", 0)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestTokenCounter(t *testing.T) {
	c, err := NewTokenCounter("not-a-model")
	require.NoError(t, err)
	n, err := c.Count("hello world")
	require.NoError(t, err)
	assert.Greater(t, n, 0)
}

func TestEchoResponder(t *testing.T) {
	out, err := EchoResponder{}.Respond(context.Background(), &Request{Prompt: "hi", History: history()})
	require.NoError(t, err)
	assert.Equal(t, "echo: hi (after 3 exchanges)", out)
}

func TestKeyStore(t *testing.T) {
	for _, v := range ProviderEnvVars {
		t.Setenv(v, "")
	}
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("OTHER=keep\nGROK_API_KEY=old\n"), 0o600))

	ks, err := NewKeyStore(path)
	require.NoError(t, err)
	v, ok := ks.Get(ProviderX)
	require.True(t, ok)
	assert.Equal(t, "old", v)

	updated, err := ks.Update(map[string]string{
		ProviderOpenAI: "  sk-1 ",
		ProviderX:      "",
		"unknown":      "zzz",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{ProviderOpenAI}, updated)
	assert.Equal(t, []string{ProviderOpenAI}, ks.Providers())

	env, err := godotenv.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "keep", env["OTHER"])
	assert.Equal(t, "sk-1", env["OPENAI_API_KEY"])
	assert.Equal(t, "", env["GROK_API_KEY"])

	reloaded, err := NewKeyStore(path)
	require.NoError(t, err)
	_, ok = reloaded.Get(ProviderX)
	assert.False(t, ok)
	v, _ = reloaded.Get(ProviderOpenAI)
	assert.Equal(t, "sk-1", v)
}

func TestKeyStoreMissingFile(t *testing.T) {
	ks, err := NewKeyStore(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.NotNil(t, ks)
}

func TestRegistry(t *testing.T) {
	for _, v := range ProviderEnvVars {
		t.Setenv(v, "")
	}
	ks, err := NewKeyStore("")
	require.NoError(t, err)
	r := NewRegistry(DefaultConfig(), ks)

	rsp, err := r.Responder("")
	require.NoError(t, err)
	assert.IsType(t, EchoResponder{}, rsp)

	_, err = r.Responder(ProviderOpenAI)
	assert.True(t, errors.Is(err, ErrMissingAPIKey))

	_, err = r.Responder("carrier-pigeon")
	assert.True(t, errors.Is(err, ErrUnknownProvider))

	_, err = ks.Update(map[string]string{ProviderOpenAI: "sk"})
	require.NoError(t, err)
	rsp, err = r.Responder(ProviderOpenAI)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIResponder{}, rsp)
}

func TestOpenAIResponder(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"m",
"choices":[{"index":0,"message":{"role":"assistant","content":"a reply"},"finish_reason":"stop"}],
"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`))
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	_, err := NewOpenAIResponder("sk-test", srv.URL+"/v1", "test-model", cfg)
	require.Error(t, err, "local base URL must be opted into")

	cfg.AllowLocalBaseURL = true
	o, err := NewOpenAIResponder("sk-test", srv.URL+"/v1", "test-model", cfg)
	require.NoError(t, err)

	out, err := o.Respond(context.Background(), &Request{
		Prompt:   "what next?",
		History:  history()[:1],
		IsBranch: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "a reply", out)

	assert.Equal(t, "test-model", got.Model)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Contains(t, got.Messages[0].Content, "alternative direction")
	assert.Equal(t, "one two", got.Messages[1].Content)
	assert.Equal(t, "assistant", got.Messages[2].Role)
	assert.Equal(t, "what next?", got.Messages[3].Content)
}

func TestOpenAIResponderMissingKey(t *testing.T) {
	_, err := NewOpenAIResponder("", "", "m", DefaultConfig())
	assert.Equal(t, ErrMissingAPIKey, err)
}

func TestToOllamaMessages(t *testing.T) {
	msgs := toOllamaMessages(BuildTurns("s", nil, "p"))
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "p", msgs[1].Content)
}

func TestRegistryEveryKeyedProviderResolves(t *testing.T) {
	for _, v := range ProviderEnvVars {
		t.Setenv(v, "")
	}
	ks, err := NewKeyStore("")
	require.NoError(t, err)
	r := NewRegistry(DefaultConfig(), ks)

	for provider := range ProviderEnvVars {
		_, err := r.Responder(provider)
		assert.True(t, errors.Is(err, ErrMissingAPIKey), provider)
	}

	keys := map[string]string{}
	for provider := range ProviderEnvVars {
		keys[provider] = "key-" + provider
	}
	_, err = ks.Update(keys)
	require.NoError(t, err)

	for provider := range ProviderEnvVars {
		_, err := r.Responder(provider)
		assert.NoError(t, err, provider)
	}

	rsp, err := r.Responder(ProviderGoogle)
	require.NoError(t, err)
	require.IsType(t, &GeminiResponder{}, rsp)
	assert.Equal(t, DefaultGeminiModel, rsp.(*GeminiResponder).model)

	rsp, err = r.Responder(ProviderAnthropic)
	require.NoError(t, err)
	require.IsType(t, &ClaudeResponder{}, rsp)
	assert.Equal(t, DefaultClaudeBaseURL, rsp.(*ClaudeResponder).baseURL)
	assert.Equal(t, DefaultClaudeModel, rsp.(*ClaudeResponder).model)
}

func TestClaudeResponder(t *testing.T) {
	var got claudeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant", r.Header.Get("x-api-key"))
		assert.Equal(t, claudeAPIVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",
"content":[{"type":"text","text":"a "},{"type":"text","text":"reply"}],
"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":2}}`))
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	_, err := NewClaudeResponder("sk-ant", srv.URL, "claude-test", cfg)
	require.Error(t, err)

	cfg.AllowLocalBaseURL = true
	c, err := NewClaudeResponder("sk-ant", srv.URL, "claude-test", cfg)
	require.NoError(t, err)

	out, err := c.Respond(context.Background(), &Request{Prompt: "what next?", History: history()[:1]})
	require.NoError(t, err)
	assert.Equal(t, "a reply", out)

	assert.Equal(t, "claude-test", got.Model)
	assert.Equal(t, DefaultClaudeMaxTokens, got.MaxTokens)
	assert.NotEmpty(t, got.System)
	assert.Equal(t, []claudeMessage{
		{Role: "user", Content: "one two"},
		{Role: "assistant", Content: "three four"},
		{Role: "user", Content: "what next?"},
	}, got.Messages)
}

func TestClaudeResponderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.AllowLocalBaseURL = true
	c, err := NewClaudeResponder("bad", srv.URL, "claude-test", cfg)
	require.NoError(t, err)

	_, err = c.Respond(context.Background(), &Request{Prompt: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid x-api-key")
}

func TestToGeminiContents(t *testing.T) {
	system, hist, prompt := toGeminiContents(BuildTurns("sys", history()[:2], "next"))
	require.NotNil(t, system)
	require.Len(t, system.Parts, 1)
	assert.Equal(t, genai.Text("sys"), system.Parts[0])

	require.Len(t, hist, 4)
	assert.Equal(t, "user", hist[0].Role)
	assert.Equal(t, "model", hist[1].Role)
	assert.Equal(t, genai.Text("three four"), hist[1].Parts[0])
	assert.Equal(t, "model", hist[3].Role)
	assert.Equal(t, "next", prompt)

	system, hist, prompt = toGeminiContents(BuildTurns("", nil, "root"))
	assert.Nil(t, system)
	assert.Empty(t, hist)
	assert.Equal(t, "root", prompt)
}

func TestGeminiResponderBaseURL(t *testing.T) {
	_, err := NewGeminiResponder("", "", DefaultGeminiModel, DefaultConfig())
	assert.Equal(t, ErrMissingAPIKey, err)

	_, err = NewGeminiResponder("k", "http://127.0.0.1:9999", DefaultGeminiModel, DefaultConfig())
	require.Error(t, err)

	assert.Equal(t, "generativelanguage.googleapis.com:443", grpcEndpoint("https://generativelanguage.googleapis.com"))
	assert.Equal(t, "127.0.0.1:9999", grpcEndpoint("http://127.0.0.1:9999"))
	assert.Equal(t, "gemini.internal:80", grpcEndpoint("http://gemini.internal/"))
}
