package responder

import (
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ProviderEnvVars maps provider names to the environment variable holding
// their API key.
var ProviderEnvVars = map[string]string{
	ProviderGoogle:    "GEMINI_API_KEY",
	ProviderOpenAI:    "OPENAI_API_KEY",
	ProviderAnthropic: "CLAUDE_API_KEY",
	ProviderX:         "GROK_API_KEY",
}

// KeyStore holds provider API keys in memory and persists them to a .env file.
type KeyStore struct {
	mu   sync.RWMutex
	path string
	keys map[string]string
}

// NewKeyStore seeds keys from the process environment, then from the .env file
// at path when it exists. File entries win.
func NewKeyStore(path string) (*KeyStore, error) {
	ks := &KeyStore{
		path: path,
		keys: map[string]string{},
	}
	for provider, envVar := range ProviderEnvVars {
		if v := os.Getenv(envVar); v != "" {
			ks.keys[provider] = v
		}
	}

	if path == "" {
		return ks, nil
	}
	env, err := godotenv.Read(path)
	if err != nil {
		if os.IsNotExist(errors.Cause(err)) {
			return ks, nil
		}
		return nil, errors.Wrapf(err, "read env file %s", path)
	}
	for provider, envVar := range ProviderEnvVars {
		if v, ok := env[envVar]; ok {
			if v == "" {
				delete(ks.keys, provider)
			} else {
				ks.keys[provider] = v
			}
		}
	}
	return ks, nil
}

func (k *KeyStore) Get(provider string) (string, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	v, ok := k.keys[provider]
	return v, ok
}

// Providers lists the providers that currently have a key.
func (k *KeyStore) Providers() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	ret := make([]string, 0, len(k.keys))
	for p := range k.keys {
		ret = append(ret, p)
	}
	sort.Strings(ret)
	return ret
}

// Update sets the given keys. An empty (after trim) key removes the provider.
// Unknown providers are ignored. It returns the providers that received a key,
// sorted.
func (k *KeyStore) Update(keys map[string]string) ([]string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	updated := []string{}
	for provider, key := range keys {
		if _, ok := ProviderEnvVars[provider]; !ok {
			log.Warn().Str("provider", provider).Msg("Ignoring API key for unknown provider")
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			delete(k.keys, provider)
			log.Info().Str("provider", provider).Msg("Removed API key")
			continue
		}
		k.keys[provider] = key
		updated = append(updated, provider)
		log.Info().Str("provider", provider).Msg("Updated API key")
	}
	sort.Strings(updated)

	if k.path == "" {
		return updated, nil
	}
	return updated, k.persist()
}

// persist rewrites the env file, keeping variables that are not provider keys.
func (k *KeyStore) persist() error {
	env, err := godotenv.Read(k.path)
	if err != nil {
		if !os.IsNotExist(errors.Cause(err)) {
			return errors.Wrapf(err, "read env file %s", k.path)
		}
		env = map[string]string{}
	}
	for provider, envVar := range ProviderEnvVars {
		env[envVar] = k.keys[provider]
	}
	if err := godotenv.Write(env, k.path); err != nil {
		return errors.Wrapf(err, "write env file %s", k.path)
	}
	return nil
}
