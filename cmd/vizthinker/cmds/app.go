package cmds

import (
	"context"

	"github.com/go-go-golems/vizthinker/pkg/cache"
	"github.com/go-go-golems/vizthinker/pkg/config"
	"github.com/go-go-golems/vizthinker/pkg/events"
	"github.com/go-go-golems/vizthinker/pkg/responder"
	"github.com/go-go-golems/vizthinker/pkg/service"
	"github.com/go-go-golems/vizthinker/pkg/store"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// app bundles what a command needs; close releases it.
type app struct {
	settings *config.Settings
	store    *store.Store
	cache    cache.MessageCache
	svc      *service.ChatService
}

func loadSettings() (*config.Settings, error) {
	return config.Load(viper.GetViper())
}

func openApp(ctx context.Context, publisher events.Publisher) (*app, error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, err
	}

	s, err := store.Open(ctx, settings.Database)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}

	var c cache.MessageCache = cache.NopCache{}
	if settings.Redis.Enabled {
		rc, err := cache.NewRedisCache(ctx, settings.Redis)
		if err != nil {
			_ = s.Close()
			return nil, errors.Wrap(err, "connecting to redis")
		}
		c = rc
	}

	keys, err := responder.NewKeyStore(settings.EnvFile)
	if err != nil {
		_ = s.Close()
		_ = c.Close()
		return nil, err
	}
	log.Debug().Strs("providers", keys.Providers()).Msg("Loaded API keys")

	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	svc := service.NewChatService(s,
		service.WithCache(c),
		service.WithPublisher(publisher),
		service.WithRegistry(responder.NewRegistry(settings.Responder, keys)),
	)
	return &app{settings: settings, store: s, cache: c, svc: svc}, nil
}

func (a *app) close() {
	if err := a.cache.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close cache")
	}
	if err := a.store.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close store")
	}
}
