package store

import (
	"fmt"
	"time"

	"github.com/go-go-golems/vizthinker/pkg/tree"
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config selects the database and sizes its connection pool.
type Config struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MaxPathDepth    int           `mapstructure:"max_path_depth"`
	SlowThreshold   time.Duration `mapstructure:"slow_threshold"`
}

func DefaultConfig() Config {
	return Config{
		Driver:          DriverSQLite,
		Path:            "vizthinker.db",
		MaxOpenConns:    5,
		MaxIdleConns:    1,
		ConnMaxLifetime: 30 * time.Minute,
		MaxPathDepth:    tree.DefaultMaxPathDepth,
		SlowThreshold:   200 * time.Millisecond,
	}
}

func (c Config) dialector() (gorm.Dialector, error) {
	switch c.Driver {
	case DriverPostgres:
		if c.DSN == "" {
			return nil, errors.New("postgres store: empty dsn")
		}
		return postgres.Open(c.DSN), nil
	case DriverSQLite, "":
		dsn := c.DSN
		if dsn == "" {
			var err error
			dsn, err = SQLiteDSNForFile(c.Path)
			if err != nil {
				return nil, err
			}
		}
		return sqlite.Open(dsn), nil
	default:
		return nil, errors.Errorf("unknown database driver %q", c.Driver)
	}
}

// PostgresDSN builds a key/value DSN for the pgx driver.
func PostgresDSN(host string, port int, user, password, dbName string) string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		host, user, password, dbName, port,
	)
}

func SQLiteDSNForFile(path string) (string, error) {
	if path == "" {
		return "", errors.New("sqlite store: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path), nil
}
