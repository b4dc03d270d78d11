package server

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/iwvelando/airframe-optimizer/internal/config"
	"github.com/iwvelando/airframe-optimizer/pkg/constants"
	"gopkg.in/yaml.v3"
)

// Config is the on-disk form of the optimization service settings.
type Config struct {
	// Address is the listen address of the HTTP API.
	Address string `yaml:"address"`
	// MaxUploadSize caps a submitted run configuration, e.g. "256K".
	MaxUploadSize string `yaml:"maxUploadSize"`
	// DataDir resolves relative airframe and catalog paths of submitted runs.
	DataDir string `yaml:"dataDir"`
	// EventBuffer is the per-subscriber queue length of a run's event stream.
	EventBuffer int                  `yaml:"eventBuffer"`
	Logging     config.LoggingConfig `yaml:"logging"`

	uploadLimit int64
}

// sizeUnits maps the accepted upload size suffixes to their byte multiplier.
// Run configurations are small YAML documents, so nothing above megabytes.
var sizeUnits = map[string]int64{
	"":   1,
	"B":  1,
	"K":  1 << 10,
	"KB": 1 << 10,
	"M":  1 << 20,
	"MB": 1 << 20,
}

func defaultConfig() *Config {
	return &Config{
		Address:       constants.DefaultServerAddress,
		MaxUploadSize: strconv.FormatInt(constants.DefaultMaxUploadSizeBytes, 10),
		DataDir:       ".",
		EventBuffer:   constants.DefaultEventBuffer,
		uploadLimit:   constants.DefaultMaxUploadSizeBytes,
	}
}

// LoadConfig reads the service settings at path. An empty path or a missing
// file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return cfg, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read server config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse server config %s: %w", path, err)
	}
	if err := cfg.fillDefaults(); err != nil {
		return nil, fmt.Errorf("server config %s: %w", path, err)
	}
	return cfg, nil
}

// UploadSizeBytes is the largest accepted run submission.
func (c *Config) UploadSizeBytes() int64 {
	return c.uploadLimit
}

// SetUploadSizeBytes replaces the upload cap; non-positive sizes are ignored.
func (c *Config) SetUploadSizeBytes(size int64) {
	if size <= 0 {
		return
	}
	c.uploadLimit = size
	c.MaxUploadSize = strconv.FormatInt(size, 10)
}

// fillDefaults restores defaults for the fields a YAML document left blank
// and resolves the upload cap.
func (c *Config) fillDefaults() error {
	def := defaultConfig()
	if c.Address == "" {
		c.Address = def.Address
	}
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = def.EventBuffer
	}

	limit, err := ParseSize(c.MaxUploadSize)
	if err != nil {
		return err
	}
	if limit <= 0 {
		limit = def.uploadLimit
	}
	c.uploadLimit = limit
	return nil
}

// ParseSize converts an upload size such as "512", "256K" or "2MB" into
// bytes. Units are case-insensitive; blank input means the default cap.
func ParseSize(value string) (int64, error) {
	s := strings.ToUpper(strings.TrimSpace(value))
	if s == "" {
		return constants.DefaultMaxUploadSizeBytes, nil
	}

	digits := strings.TrimRightFunc(s, func(r rune) bool { return !unicode.IsDigit(r) })
	if digits == "" {
		return 0, fmt.Errorf("invalid upload size %q", value)
	}
	unit := strings.TrimSpace(s[len(digits):])
	multiplier, ok := sizeUnits[unit]
	if !ok {
		return 0, fmt.Errorf("unsupported upload size unit %q in %q", unit, value)
	}

	n, err := strconv.ParseInt(strings.TrimSpace(digits), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid upload size %q: %w", value, err)
	}
	if n > math.MaxInt64/multiplier {
		return 0, fmt.Errorf("upload size %q overflows", value)
	}
	return n * multiplier, nil
}
