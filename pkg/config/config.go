// Package config loads a cuckoonode's YAML configuration file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/salviati-labs/cuckoofilter/cuckoo"
)

// Config is the top-level configuration for a single cuckoonode process.
type Config struct {
	Node    NodeConfig    `yaml:"node"`
	Network NetworkConfig `yaml:"network"`
	Cluster ClusterConfig `yaml:"cluster"`
	Filter  FilterConfig  `yaml:"filter"`
	Logging LoggingConfig `yaml:"logging"`
}

// NodeConfig identifies this process within the cluster.
type NodeConfig struct {
	ID            string `yaml:"id"`
	SnapshotPath  string `yaml:"snapshot_path"`
	LoadSnapshot  bool   `yaml:"load_snapshot_on_start"`
	SaveOnSIGTERM bool   `yaml:"save_snapshot_on_shutdown"`
}

// NetworkConfig carries the two listener configurations: the RESP
// client-facing API, and the gossip port used for cluster membership.
type NetworkConfig struct {
	RESPBindAddr  string `yaml:"resp_bind_addr"`
	RESPPort      int    `yaml:"resp_port"`
	AdvertiseAddr string `yaml:"advertise_addr"`
	GossipPort    int    `yaml:"gossip_port"`
}

// ClusterConfig controls full-replica gossip membership and mutation
// broadcast.
type ClusterConfig struct {
	Enabled           bool     `yaml:"enabled"`
	ClusterName       string   `yaml:"cluster_name"`
	Seeds             []string `yaml:"seeds"`
	JoinTimeout       int      `yaml:"join_timeout_seconds"`
	HeartbeatInterval int      `yaml:"heartbeat_interval_seconds"`
}

// FilterConfig parameterizes the cuckoo.Builder used to construct the
// node's filter.
type FilterConfig struct {
	MaxKeys             uint64  `yaml:"max_keys"`
	FalsePositiveRate   float64 `yaml:"false_positive_rate"`
	Algorithm           string  `yaml:"algorithm"`
	ExpectedConcurrency int     `yaml:"expected_concurrency"`
}

// LoggingConfig mirrors the YAML-facing shape of logging.LogConfig.
type LoggingConfig struct {
	Level         string `yaml:"level"`
	EnableConsole bool   `yaml:"enable_console"`
	EnableFile    bool   `yaml:"enable_file"`
	LogFile       string `yaml:"log_file"`
	LogDir        string `yaml:"log_dir"`
	BufferSize    int    `yaml:"buffer_size"`
}

// Default returns a usable configuration; Node.ID is left blank and
// should be set by the caller (or left blank to auto-generate one).
func Default() *Config {
	return &Config{
		Node: NodeConfig{
			SnapshotPath: "cuckoofilter.snapshot",
		},
		Network: NetworkConfig{
			RESPBindAddr: "0.0.0.0",
			RESPPort:     7000,
			GossipPort:   7946,
		},
		Cluster: ClusterConfig{
			Enabled:           false,
			ClusterName:       "cuckoofilter",
			Seeds:             []string{},
			JoinTimeout:       30,
			HeartbeatInterval: 5,
		},
		Filter: FilterConfig{
			MaxKeys:             1_000_000,
			FalsePositiveRate:   0.01,
			Algorithm:           "xxhash64",
			ExpectedConcurrency: 16,
		},
		Logging: LoggingConfig{
			Level:         "info",
			EnableConsole: true,
			EnableFile:    false,
			LogDir:        "logs",
			BufferSize:    1000,
		},
	}
}

// Load reads path as YAML over the defaults; a missing file is not an
// error — the defaults are returned as-is.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Validate rejects configurations that would fail later, deeper in
// the stack, with a less actionable error.
func (c *Config) Validate() error {
	if c.Network.RESPPort <= 0 || c.Network.RESPPort > 65535 {
		return fmt.Errorf("network.resp_port must be between 1 and 65535")
	}
	if c.Cluster.Enabled {
		if c.Network.GossipPort <= 0 || c.Network.GossipPort > 65535 {
			return fmt.Errorf("network.gossip_port must be between 1 and 65535")
		}
		if c.Cluster.ClusterName == "" {
			return fmt.Errorf("cluster.cluster_name is required when cluster.enabled is true")
		}
	}
	if c.Filter.MaxKeys == 0 {
		return fmt.Errorf("filter.max_keys must be positive")
	}
	if c.Filter.FalsePositiveRate <= 0 || c.Filter.FalsePositiveRate >= 1 {
		return fmt.Errorf("filter.false_positive_rate must be in (0, 1)")
	}
	if !isKnownAlgorithm(c.Filter.Algorithm) {
		return fmt.Errorf("filter.algorithm %q is not recognized", c.Filter.Algorithm)
	}
	return nil
}

func isKnownAlgorithm(name string) bool {
	_, err := algorithmIDFor(name)
	return err == nil
}

// algorithmIDFor maps the config file's lowercase algorithm name to its
// cuckoo.AlgorithmID. The accepted names are the strings
// cuckoo.AlgorithmID.String returns.
func algorithmIDFor(name string) (cuckoo.AlgorithmID, error) {
	switch name {
	case "murmur3_32":
		return cuckoo.Murmur3_32, nil
	case "murmur3_128":
		return cuckoo.Murmur3_128, nil
	case "sha256":
		return cuckoo.SHA256, nil
	case "siphash24":
		return cuckoo.SipHash24, nil
	case "xxhash64":
		return cuckoo.XXHash64, nil
	default:
		return 0, fmt.Errorf("unrecognized algorithm %q", name)
	}
}

// BuildFilter constructs a cuckoo.Filter from this configuration's
// Filter section.
func (c *Config) BuildFilter() (*cuckoo.Filter, error) {
	id, err := algorithmIDFor(c.Filter.Algorithm)
	if err != nil {
		return nil, err
	}
	return cuckoo.NewBuilder(c.Filter.MaxKeys).
		WithFalsePositiveRate(c.Filter.FalsePositiveRate).
		WithAlgorithm(id).
		WithExpectedConcurrency(c.Filter.ExpectedConcurrency).
		Build()
}
