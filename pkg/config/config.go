package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 是守护进程的完整配置。
type Config struct {
	Node      NodeConfig      `yaml:"node"`
	Storage   StorageConfig   `yaml:"storage"`
	Sync      SyncConfig      `yaml:"sync"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Conflict  ConflictConfig  `yaml:"conflict"`
	Peers     []PeerConfig    `yaml:"peers"`
}

type NodeConfig struct {
	ID          string `yaml:"id"`
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`
}

type StorageConfig struct {
	Dir      string `yaml:"dir"`
	InMemory bool   `yaml:"in_memory"`
}

type SyncConfig struct {
	Interval          time.Duration `yaml:"interval"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	StaleThreshold    time.Duration `yaml:"stale_threshold"`
	EvictThreshold    time.Duration `yaml:"evict_threshold"`
	HighMultiplier    int           `yaml:"high_multiplier"`
	LowMultiplier     int           `yaml:"low_multiplier"`
}

type DiscoveryConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Port     int           `yaml:"port"`
	Interval time.Duration `yaml:"interval"`
}

type ConflictConfig struct {
	AutoResolve bool          `yaml:"auto_resolve"`
	HistorySize int           `yaml:"history_size"`
	HistoryTTL  time.Duration `yaml:"history_ttl"`
}

// PeerConfig 是静态配置的种子节点。
type PeerConfig struct {
	ID   string `yaml:"id"`
	Addr string `yaml:"addr"`
}

// Default 返回可直接运行的默认配置。
func Default() *Config {
	return &Config{
		Node: NodeConfig{
			BindAddress: "0.0.0.0",
			Port:        7946,
		},
		Storage: StorageConfig{
			Dir: "./data",
		},
		Sync: SyncConfig{
			Interval:          10 * time.Second,
			HeartbeatInterval: 5 * time.Second,
			StaleThreshold:    30 * time.Second,
			EvictThreshold:    2 * time.Minute,
			HighMultiplier:    2,
			LowMultiplier:     4,
		},
		Discovery: DiscoveryConfig{
			Enabled:  true,
			Port:     7947,
			Interval: 30 * time.Second,
		},
		Conflict: ConflictConfig{
			AutoResolve: true,
			HistorySize: 1024,
			HistoryTTL:  24 * time.Hour,
		},
	}
}

// Read 读取配置文件并叠加在默认值之上。
func Read(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("配置解析失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置的基本约束。
func (c *Config) Validate() error {
	if c.Node.ID == "" {
		return fmt.Errorf("node.id 不能为空")
	}
	if c.Node.Port <= 0 || c.Node.Port > 65535 {
		return fmt.Errorf("node.port 非法: %d", c.Node.Port)
	}
	if c.Discovery.Enabled && (c.Discovery.Port <= 0 || c.Discovery.Port > 65535) {
		return fmt.Errorf("discovery.port 非法: %d", c.Discovery.Port)
	}
	if !c.Storage.InMemory && c.Storage.Dir == "" {
		return fmt.Errorf("storage.dir 不能为空")
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval 必须为正")
	}
	if c.Sync.HighMultiplier <= 0 || c.Sync.LowMultiplier <= 0 {
		return fmt.Errorf("sync 间隔倍率必须为正")
	}
	for i, p := range c.Peers {
		if p.ID == "" || p.Addr == "" {
			return fmt.Errorf("peers[%d] 缺少 id 或 addr", i)
		}
	}
	return nil
}
