package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/workhours/overtime/config"
)

func TestNew_WritesJSONToFile(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Log.Format = "json"
	cfg.Log.Level = "warn"
	cfg.Log.Path = filepath.Join(t.TempDir(), "overtime.log")

	logger, f, err := New(cfg)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, log.WarnLevel, logger.GetLevel())

	logger.Info("dropped")
	logger.Warn("report failed", "org", "acme")
	require.NoError(t, f.Close())

	data, err := os.ReadFile(cfg.Log.Path)
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(data, &line))
	assert.Equal(t, "report failed", line["msg"])
	assert.Equal(t, "acme", line["org"])
	assert.NotContains(t, string(data), "dropped")
}

func TestNew_Errors(t *testing.T) {
	_, _, err := New(nil)
	assert.ErrorIs(t, err, config.ErrNilConfig)

	cfg := config.DefaultConfig()
	cfg.Log.Level = "loud"
	_, _, err = New(cfg)
	assert.Error(t, err)
}
