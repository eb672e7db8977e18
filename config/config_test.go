package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = cfg.Mode()
	assert.ErrorIs(t, err, ErrNoEndpoint)
}

func TestLoadLayers(t *testing.T) {
	tomlPath := writeFile(t, "wirechat.toml", `
dial = "peer.local:7000"
download_dir = "  /srv/inbox  "
read_timeout = "30s"
chunk_size = 512
log_level = "debug"
`)
	t.Setenv("WIRECHAT_LOG_LEVEL", "warn")
	t.Setenv("WIRECHAT_WRITE_TIMEOUT", "5s")

	cfg, err := Load(tomlPath, "")
	require.NoError(t, err)

	assert.Equal(t, "peer.local:7000", cfg.Dial)
	assert.Equal(t, "/srv/inbox", cfg.DownloadDir)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 5*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 512, cfg.ChunkSize)
	assert.Equal(t, "warn", cfg.LogLevel, "environment wins over the file")
	assert.Equal(t, Default().MaxFrameSize, cfg.MaxFrameSize, "keys absent from the file keep defaults")

	require.NoError(t, cfg.Validate())
	mode, err := cfg.Mode()
	require.NoError(t, err)
	assert.Equal(t, ModeDial, mode)
}

func TestLoadEnvFile(t *testing.T) {
	envPath := writeFile(t, "test.env", "WIRECHAT_LISTEN=:7100\nWIRECHAT_EVENT_BUFFER=32\n")
	t.Setenv("WIRECHAT_EVENT_BUFFER", "64")
	t.Cleanup(func() { os.Unsetenv("WIRECHAT_LISTEN") })

	cfg, err := Load("", envPath)
	require.NoError(t, err)
	assert.Equal(t, ":7100", cfg.Listen)
	assert.Equal(t, 64, cfg.EventBuffer, "dotenv never overrides the real environment")
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"), "")
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.toml", `read_timeout = "soon"`), "")
	assert.ErrorContains(t, err, "read_timeout")

	_, err = Load("", filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)

	t.Setenv("WIRECHAT_CHUNK_SIZE", "lots")
	_, err = Load("", "")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := Default()
	base.Listen = ":7000"

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
		ok      bool
	}{
		{name: "valid", mutate: func(*Config) {}, ok: true},
		{name: "no endpoint", mutate: func(c *Config) { c.Listen = "" }, wantErr: ErrNoEndpoint},
		{name: "two endpoints", mutate: func(c *Config) { c.Dial = "x:1" }, wantErr: ErrMultipleEndpoints},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "loud" }},
		{name: "chunk above frame bound", mutate: func(c *Config) { c.ChunkSize = c.MaxFrameSize + 1 }},
		{name: "chunk above wire limit", mutate: func(c *Config) { c.ChunkSize = 4096 }},
		{name: "tiny frame bound", mutate: func(c *Config) { c.MaxFrameSize = 16; c.ChunkSize = 8 }},
		{name: "missing download dir", mutate: func(c *Config) { c.DownloadDir = "" }},
		{name: "bad websocket url", mutate: func(c *Config) { c.Listen = ""; c.WebSocketURL = "::nope" }},
		{name: "negative timeout", mutate: func(c *Config) { c.ReadTimeout = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.ReadTimeout = time.Minute
	cfg.ChunkSize = 512
	cfg.LogFile = "/var/log/wirechat.log"

	opts := cfg.Options()
	assert.Equal(t, time.Minute, opts.ReadTimeout)
	assert.Equal(t, 512, opts.ChunkSize)
	assert.Equal(t, cfg.MaxFrameSize, opts.MaxFrameSize)

	lc := cfg.Logging()
	assert.Equal(t, "/var/log/wirechat.log", lc.File)
	assert.Equal(t, cfg.LogMaxSizeMB, lc.MaxSizeMB)
}
