package store

import (
	"context"
	"sync"

	"github.com/go-go-golems/vizthinker/pkg/tree"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Store persists users, sessions and message trees through gorm.
//
// Every multi-step mutation (insert + index append, subtree delete + index
// update, position batches) runs inside a single transaction, so concurrent
// readers never observe a half-applied change.
type Store struct {
	mu           sync.RWMutex
	db           *gorm.DB
	driver       string
	maxPathDepth int
	closed       bool
}

func Open(ctx context.Context, cfg Config) (*Store, error) {
	dialector, err := cfg.dialector()
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         newGormLogger(cfg.SlowThreshold),
		TranslateError: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get underlying database connection")
	}

	maxOpen := cfg.MaxOpenConns
	if cfg.Driver == DriverSQLite || cfg.Driver == "" {
		// sqlite serialises writers; a single connection avoids SQLITE_BUSY
		maxOpen = 1
	}
	if maxOpen > 0 {
		sqlDB.SetMaxOpenConns(maxOpen)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, "ping database")
	}

	maxDepth := cfg.MaxPathDepth
	if maxDepth <= 0 {
		maxDepth = tree.DefaultMaxPathDepth
	}

	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}
	log.Debug().Str("driver", driver).Int("max_open_conns", maxOpen).Msg("Database connection established")

	return &Store{
		db:           db,
		driver:       driver,
		maxPathDepth: maxDepth,
	}, nil
}

// Migrate creates or updates the schema.
func (s *Store) Migrate(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).AutoMigrate(allModels()...); err != nil {
		return errors.Wrap(err, "migrate database")
	}
	log.Info().Str("driver", s.driver).Msg("Database schema ensured")
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, "get underlying database connection")
	}
	if err := sqlDB.Close(); err != nil {
		return errors.Wrap(err, "close database connection")
	}
	log.Debug().Msg("Database connection closed")
	return nil
}

func (s *Store) ensureOpen() error {
	if s.closed {
		return errors.New("store closed")
	}
	if s.db == nil {
		return errors.New("store db is nil")
	}
	return nil
}

// txLookup answers tree lookups against a transaction or the plain handle.
type txLookup struct {
	tx *gorm.DB
}

var _ tree.NodeLookup = txLookup{}
var _ tree.ChildrenLookup = txLookup{}

func (l txLookup) LookupNode(ctx context.Context, id tree.MessageID) (*tree.Message, bool, error) {
	var rec messageRecord
	err := l.tx.WithContext(ctx).Take(&rec, int64(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return rec.toMessage(), true, nil
}

func (l txLookup) LookupChildren(ctx context.Context, id tree.MessageID) ([]tree.MessageID, error) {
	var ids []int64
	err := l.tx.WithContext(ctx).
		Model(&messageRecord{}).
		Where("parent_id = ?", int64(id)).
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return toMessageIDs(ids), nil
}
