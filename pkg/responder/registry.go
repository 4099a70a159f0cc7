package responder

import (
	"github.com/pkg/errors"
)

// Registry builds the responder for a provider on demand, so that key updates
// take effect on the next call.
type Registry struct {
	cfg  Config
	keys *KeyStore
}

func NewRegistry(cfg Config, keys *KeyStore) *Registry {
	if keys == nil {
		keys = &KeyStore{keys: map[string]string{}}
	}
	return &Registry{cfg: cfg, keys: keys}
}

func (r *Registry) Config() Config {
	return r.cfg
}

func (r *Registry) Keys() *KeyStore {
	return r.keys
}

// Responder returns the responder for provider, or the configured default
// provider when empty.
func (r *Registry) Responder(provider string) (Responder, error) {
	if provider == "" {
		provider = r.cfg.Provider
	}

	switch provider {
	case ProviderEcho:
		return EchoResponder{}, nil

	case ProviderOpenAI, ProviderX:
		key, ok := r.keys.Get(provider)
		if !ok {
			return nil, errors.Wrapf(ErrMissingAPIKey, "provider %s", provider)
		}
		baseURL, model := r.cfg.BaseURL, r.cfg.Model
		if provider == ProviderX {
			if baseURL == "" || r.cfg.Provider != ProviderX {
				baseURL = DefaultXBaseURL
			}
			if model == "" || r.cfg.Provider != ProviderX {
				model = DefaultXModel
			}
		} else {
			if r.cfg.Provider != ProviderOpenAI {
				baseURL = ""
			}
			if model == "" || r.cfg.Provider != ProviderOpenAI {
				model = DefaultOpenAIModel
			}
		}
		return NewOpenAIResponder(key, baseURL, model, r.cfg)

	case ProviderGoogle:
		key, ok := r.keys.Get(provider)
		if !ok {
			return nil, errors.Wrapf(ErrMissingAPIKey, "provider %s", provider)
		}
		baseURL, model := r.providerDefaults(provider, "", DefaultGeminiModel)
		return NewGeminiResponder(key, baseURL, model, r.cfg)

	case ProviderAnthropic:
		key, ok := r.keys.Get(provider)
		if !ok {
			return nil, errors.Wrapf(ErrMissingAPIKey, "provider %s", provider)
		}
		baseURL, model := r.providerDefaults(provider, DefaultClaudeBaseURL, DefaultClaudeModel)
		return NewClaudeResponder(key, baseURL, model, r.cfg)

	case ProviderOllama:
		model := r.cfg.Model
		if model == "" || r.cfg.Provider != ProviderOllama {
			model = DefaultOllamaModel
		}
		return NewOllamaResponder(model, r.cfg)

	default:
		return nil, errors.Wrapf(ErrUnknownProvider, "%q", provider)
	}
}

// providerDefaults returns the configured base URL and model when provider is
// the configured default provider, and the provider's own defaults otherwise.
func (r *Registry) providerDefaults(provider, baseURL, model string) (string, string) {
	if r.cfg.Provider != provider {
		return baseURL, model
	}
	if r.cfg.BaseURL != "" {
		baseURL = r.cfg.BaseURL
	}
	if r.cfg.Model != "" {
		model = r.cfg.Model
	}
	return baseURL, model
}
