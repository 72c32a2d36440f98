package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hashroot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "OWNER_ONLY", cfg.Owner)
	assert.Equal(t, 202, cfg.MaxEntries)
	assert.Equal(t, 100, cfg.GroupSize)
	assert.Equal(t, 60*time.Second, cfg.TTL)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeConfig(t, `
owner: alice
requester: alice
group_size: 10
ttl: 2m
forbidden_labels: [retina]
sink:
  kind: local
  dir: /srv/repo/out
  compression: zstd
  codec: json
sync:
  git:
    enabled: true
    repo_dir: /srv/repo
`)

	cfg, err := LoadWithEnv(path, map[string]string{
		"HASHROOT_GROUP_SIZE":        "20",
		"HASHROOT_SINK_PREFIX":       "node-1/",
		"HASHROOT_SYNC_GIT_BRANCH":   "snapshots",
		"HASHROOT_LOG_FORMAT":        "json",
		"HASHROOT_SCHEDULER_MONITOR": "true",
	})
	require.NoError(t, err)

	assert.Equal(t, "alice", cfg.Owner)
	assert.Equal(t, 20, cfg.GroupSize)
	assert.Equal(t, 2*time.Minute, cfg.TTL)
	assert.Equal(t, []string{"retina"}, cfg.ForbiddenLabels)
	assert.Equal(t, "local", cfg.Sink.Kind)
	assert.Equal(t, "/srv/repo/out", cfg.Sink.Dir)
	assert.Equal(t, "node-1/", cfg.Sink.Prefix)
	assert.Equal(t, "zstd", cfg.Sink.Compression)
	assert.Equal(t, "json", cfg.Sink.Codec)
	assert.True(t, cfg.Sync.Git.Enabled)
	assert.Equal(t, "snapshots", cfg.Sync.Git.Branch)
	assert.Equal(t, "origin", cfg.Sync.Git.Remote)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Scheduler.Monitor)
	// untouched defaults survive
	assert.Equal(t, 202, cfg.MaxEntries)
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := LoadWithEnv("", map[string]string{"HASHROOT_OWNER": "bob"})
	require.NoError(t, err)
	assert.Equal(t, "bob", cfg.Owner)
	assert.Equal(t, "OWNER_ONLY", cfg.Requester)
}

func TestLoad_Errors(t *testing.T) {
	_, err := LoadWithEnv(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.ErrorContains(t, err, "read config")

	_, err = LoadWithEnv(writeConfig(t, "unknown_key: 1\n"), nil)
	assert.ErrorContains(t, err, "parse config")

	_, err = LoadWithEnv("", map[string]string{"HASHROOT_MAX_ENTRIES": "many"})
	assert.ErrorContains(t, err, "parse env")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Owner = ""
	cfg.GroupSize = 1
	cfg.Sink.Kind = "tape"
	cfg.Sink.Compression = "rar"
	cfg.Sink.Codec = "msgpack"
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"owner", "group_size", "sink.kind", "compression", "sink.codec", "log.format"} {
		assert.ErrorContains(t, err, want)
	}

	cfg = Default()
	cfg.Sink = SinkConfig{Kind: "s3"}
	assert.ErrorContains(t, cfg.Validate(), "sink.bucket")

	cfg = Default()
	cfg.Sink = SinkConfig{Kind: "minio", Bucket: "b"}
	assert.ErrorContains(t, cfg.Validate(), "sink.endpoint")

	cfg = Default()
	cfg.Sink = SinkConfig{Kind: "s3", Bucket: "b"}
	cfg.Sync.Git.Enabled = true
	assert.ErrorContains(t, cfg.Validate(), "sync.git")
}

func TestLoad_Telemetry(t *testing.T) {
	cfg, err := LoadWithEnv("", map[string]string{
		"HASHROOT_OTEL_ENDPOINT": "http://collector:4318",
	})
	require.NoError(t, err)
	assert.Equal(t, "http://collector:4318", cfg.Telemetry.Endpoint)
	assert.Equal(t, "hashroot", cfg.Telemetry.ServiceName)
}

func TestLoad_GitRequiresLocalSink(t *testing.T) {
	path := writeConfig(t, `
sink:
  kind: minio
  bucket: snaps
  endpoint: localhost:9000
sync:
  git:
    enabled: true
`)

	_, err := LoadWithEnv(path, nil)
	assert.ErrorContains(t, err, "sync.git requires a local sink")

	_, err = LoadWithEnv(path, map[string]string{
		"HASHROOT_SINK_KIND": "local",
		"HASHROOT_SINK_DIR":  t.TempDir(),
	})
	assert.NoError(t, err)
}

func TestDefault_Codec(t *testing.T) {
	assert.Equal(t, "json-indent", Default().Sink.Codec)
}
