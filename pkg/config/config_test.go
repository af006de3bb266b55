package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReadOverlaysDefaults(t *testing.T) {
	path := writeFile(t, `
node:
  id: node-a
  port: 9000
sync:
  interval: 3s
peers:
  - id: node-b
    addr: 10.0.0.2:9000
`)
	cfg, err := Read(path)
	require.NoError(t, err)

	assert.Equal(t, "node-a", cfg.Node.ID)
	assert.Equal(t, 9000, cfg.Node.Port)
	assert.Equal(t, 3*time.Second, cfg.Sync.Interval)
	// 未覆盖的字段保持默认值
	assert.Equal(t, 5*time.Second, cfg.Sync.HeartbeatInterval)
	assert.True(t, cfg.Discovery.Enabled)
	require.Len(t, cfg.Peers, 1)
	assert.Equal(t, "node-b", cfg.Peers[0].ID)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	// 默认配置缺少节点 ID
	assert.Error(t, cfg.Validate())

	cfg.Node.ID = "node-a"
	assert.NoError(t, cfg.Validate())

	cfg.Node.Port = 0
	assert.Error(t, cfg.Validate())
	cfg.Node.Port = 7946

	cfg.Storage.Dir = ""
	assert.Error(t, cfg.Validate())
	cfg.Storage.InMemory = true
	assert.NoError(t, cfg.Validate())

	cfg.Peers = []PeerConfig{{ID: "node-b"}}
	assert.Error(t, cfg.Validate())
}

func TestReadRejectsBadYAML(t *testing.T) {
	path := writeFile(t, "node: [broken")
	_, err := Read(path)
	assert.Error(t, err)
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
