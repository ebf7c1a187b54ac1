package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asaldivar93/reactors-czlab/internal/store"
)

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestDefaults(t *testing.T) {
	cfg, err := LoadWithEnv("", noEnv)
	require.NoError(t, err)

	assert.Equal(t, "sqlite3", cfg.Storage.Driver)
	assert.Equal(t, "reactorlog.db", cfg.Storage.DSN)
	assert.Equal(t, 4, cfg.Ingest.Workers)
	assert.Equal(t, 1024, cfg.Ingest.Queue)
	assert.Equal(t, ExportFile, cfg.Export.Driver)

	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "reactorlog.yaml", `
storage:
  driver: sqlite
  dsn: /var/lib/reactorlog/data.db
registry: kinds.cue
experiments:
  exp-A:
    reactors: [R1, R2]
    volume: 1.5
ingest:
  workers: 8
  queue: 64
  metrics_addr: ":9464"
export:
  driver: s3
  bucket: lab-data
  endpoint: http://minio:9000
  path_style: true
  prefix: runs
log:
  level: debug
`)

	cfg, err := LoadWithEnv(p, noEnv)
	require.NoError(t, err)

	sc, err := cfg.StoreConfig()
	require.NoError(t, err)
	assert.Equal(t, store.DriverSQLite, sc.Driver)
	assert.Equal(t, "/var/lib/reactorlog/data.db", sc.DSN)
	assert.Equal(t, 8, cfg.Ingest.Workers)
	assert.Equal(t, ":9464", cfg.Ingest.MetricsAddr)

	info := cfg.ResolverInfo()
	require.Contains(t, info, "exp-A")
	assert.Equal(t, []string{"R1", "R2"}, info["exp-A"].Reactors)
	require.NotNil(t, info["exp-A"].Volume)
	assert.Equal(t, 1.5, *info["exp-A"].Volume)

	s3 := cfg.S3Config()
	assert.Equal(t, "lab-data", s3.Bucket)
	assert.True(t, s3.PathStyle)
	assert.Equal(t, "http://minio:9000", s3.Endpoint)

	assert.Equal(t, filepath.Join(dir, "kinds.cue"), cfg.resolvePath(cfg.Registry))

	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoad_UnknownField(t *testing.T) {
	p := writeFile(t, t.TempDir(), "bad.yaml", "storage:\n  drvier: sqlite\n")
	_, err := LoadWithEnv(p, noEnv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "drvier")
}

func TestLoad_EmptyFile(t *testing.T) {
	p := writeFile(t, t.TempDir(), "empty.yaml", "")
	cfg, err := LoadWithEnv(p, noEnv)
	require.NoError(t, err)
	assert.Equal(t, "reactorlog.db", cfg.Storage.DSN)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := LoadWithEnv(filepath.Join(t.TempDir(), "nope.yaml"), noEnv)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg, err := LoadWithEnv("", envMap(map[string]string{
		"REACTORLOG_STORAGE_DRIVER":       "postgres",
		"REACTORLOG_STORAGE_DSN":          "postgres://lab@db/reactors",
		"REACTORLOG_INGEST_WORKERS":       "2",
		"REACTORLOG_EXPORT_DRIVER":        "s3",
		"REACTORLOG_EXPORT_S3_BUCKET":     "b",
		"REACTORLOG_EXPORT_S3_PATH_STYLE": "TRUE",
		"REACTORLOG_LOG_LEVEL":            "warn",
	}))
	require.NoError(t, err)

	sc, err := cfg.StoreConfig()
	require.NoError(t, err)
	assert.Equal(t, store.DriverPostgres, sc.Driver)
	assert.Equal(t, "postgres://lab@db/reactors", sc.DSN)
	assert.Equal(t, 2, cfg.Ingest.Workers)
	assert.True(t, cfg.Export.PathStyle)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestApplyEnv_BadInt(t *testing.T) {
	_, err := LoadWithEnv("", envMap(map[string]string{"REACTORLOG_INGEST_QUEUE": "lots"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REACTORLOG_INGEST_QUEUE")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad driver", "storage: {driver: mysql}"},
		{"empty dsn", "storage: {dsn: ''}"},
		{"zero workers", "ingest: {workers: 0}"},
		{"s3 without bucket", "export: {driver: s3}"},
		{"unknown export driver", "export: {driver: ftp}"},
		{"bad log level", "log: {level: chatty}"},
		{"blank experiment", "experiments: {' ': {volume: 1}}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadRegistry(t *testing.T) {
	cfg := Default()
	reg, err := cfg.LoadRegistry()
	require.NoError(t, err)
	assert.Len(t, reg.Kinds(), 7)

	dir := t.TempDir()
	writeFile(t, dir, "kinds.cue", `
kinds: {
	ph: {
		calibration: false
		unit_required: true
	}
}
`)
	p := writeFile(t, dir, "cfg.yaml", "registry: kinds.cue\n")
	cfg, err = LoadWithEnv(p, noEnv)
	require.NoError(t, err)
	reg, err = cfg.LoadRegistry()
	require.NoError(t, err)
	assert.Equal(t, []string{"ph"}, reg.Kinds())
}
