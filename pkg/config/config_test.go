package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/salviati-labs/cuckoofilter/pkg/config"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := config.Load("/nonexistent/path.yaml")
	require.NoError(t, err)

	require.Equal(t, 7000, cfg.Network.RESPPort)
	require.Equal(t, "0.0.0.0", cfg.Network.RESPBindAddr)
	require.Equal(t, uint64(1_000_000), cfg.Filter.MaxKeys)
	require.Equal(t, "xxhash64", cfg.Filter.Algorithm)
	require.NoError(t, cfg.Validate())
}

func TestLoadParsesYAMLOverDefaults(t *testing.T) {
	yamlContent := `
node:
  id: node-a
network:
  resp_port: 9000
  gossip_port: 7947
cluster:
  enabled: true
  cluster_name: test-cluster
  seeds: ["node-b:7947"]
filter:
  max_keys: 500000
  false_positive_rate: 0.001
  algorithm: murmur3_128
  expected_concurrency: 8
logging:
  level: debug
`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	require.Equal(t, "node-a", cfg.Node.ID)
	require.Equal(t, 9000, cfg.Network.RESPPort)
	require.True(t, cfg.Cluster.Enabled)
	require.Equal(t, []string{"node-b:7947"}, cfg.Cluster.Seeds)
	require.Equal(t, uint64(500000), cfg.Filter.MaxKeys)
	require.Equal(t, "murmur3_128", cfg.Filter.Algorithm)
	require.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr bool
	}{
		{"badRESPPort", func(c *config.Config) { c.Network.RESPPort = -1 }, true},
		{"badFPP", func(c *config.Config) { c.Filter.FalsePositiveRate = 0 }, true},
		{"zeroMaxKeys", func(c *config.Config) { c.Filter.MaxKeys = 0 }, true},
		{"unknownAlgorithm", func(c *config.Config) { c.Filter.Algorithm = "rot13" }, true},
		{"clusterMissingName", func(c *config.Config) { c.Cluster.Enabled = true; c.Cluster.ClusterName = "" }, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestBuildFilterConstructsUsableFilter(t *testing.T) {
	cfg := config.Default()
	cfg.Filter.MaxKeys = 5000

	f, err := cfg.BuildFilter()
	require.NoError(t, err)
	require.True(t, f.Put([]byte("item")))
	require.True(t, f.MightContain([]byte("item")))
}
