package server

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/iwvelando/airframe-optimizer/pkg/constants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaultsWhenMissing(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, constants.DefaultServerAddress, cfg.Address)
	assert.Equal(t, constants.DefaultMaxUploadSizeBytes, cfg.UploadSizeBytes())
	assert.Equal(t, constants.DefaultEventBuffer, cfg.EventBuffer)
	assert.Equal(t, ".", cfg.DataDir)
	assert.Empty(t, cfg.Logging.Level)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server-config.yaml")
	contents := []byte(`address: 127.0.0.1:9000
maxUploadSize: 2M
dataDir: /srv/designs
eventBuffer: 16
logging:
  level: debug
  format: console
  outputFile: /tmp/server.log
`)
	require.NoError(t, os.WriteFile(path, contents, 0600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Address)
	assert.Equal(t, int64(2*1024*1024), cfg.UploadSizeBytes())
	assert.Equal(t, "/srv/designs", cfg.DataDir)
	assert.Equal(t, 16, cfg.EventBuffer)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, "/tmp/server.log", cfg.Logging.OutputFile)
}

func TestLoadConfigInvalidSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("maxUploadSize: invalid"), 0600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestParseSize(t *testing.T) {
	tests := map[string]int64{
		"":          constants.DefaultMaxUploadSizeBytes,
		"1024":      1024,
		"512b":      512,
		"256K":      256 * 1024,
		"1m":        1024 * 1024,
		"3MB":       3 * 1024 * 1024,
		"  4096   ": 4096,
	}
	for input, expected := range tests {
		got, err := ParseSize(input)
		require.NoError(t, err, "ParseSize(%q)", input)
		assert.Equal(t, expected, got, "ParseSize(%q)", input)
	}

	_, err := ParseSize("1GB")
	assert.Error(t, err, "uploads are capped below a gigabyte")
	_, err = ParseSize("abc")
	assert.Error(t, err)
}

func TestParseSizeRejectsOverflow(t *testing.T) {
	for _, input := range []string{"9223372036854775807K", "9007199254740992M"} {
		_, err := ParseSize(input)
		assert.Error(t, err, "ParseSize(%q)", input)
	}

	got, err := ParseSize("8796093022207M")
	require.NoError(t, err)
	assert.Equal(t, int64(8796093022207)<<20, got)
}

func TestLoadConfigBlankFieldsKeepDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte("address: \"\"\neventBuffer: -3\n"), 0600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, constants.DefaultServerAddress, cfg.Address)
	assert.Equal(t, constants.DefaultEventBuffer, cfg.EventBuffer)
	assert.Equal(t, constants.DefaultMaxUploadSizeBytes, cfg.UploadSizeBytes())
}

func TestSetUploadSizeBytes(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	cfg.SetUploadSizeBytes(4096)
	assert.Equal(t, int64(4096), cfg.UploadSizeBytes())
	assert.Equal(t, "4096", cfg.MaxUploadSize)

	cfg.SetUploadSizeBytes(-1)
	assert.Equal(t, int64(4096), cfg.UploadSizeBytes())
}
