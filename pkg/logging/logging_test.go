package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, l)

	l, err = ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, l)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestInitLoggerWritesFile(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.GlobalLevel())
	path := filepath.Join(t.TempDir(), "vizthinker.log")

	require.NoError(t, InitLogger(&Config{Level: "warn", LogFormat: "text", LogFile: path}))
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	log.Warn().Str("component", "test").Msg("written to file")
	log.Info().Msg("filtered out")

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "written to file")
	assert.NotContains(t, string(b), "filtered out")
}
