package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/salviati-labs/cuckoofilter/cuckoo"
	"github.com/salviati-labs/cuckoofilter/internal/cluster"
	"github.com/salviati-labs/cuckoofilter/internal/logging"
	"github.com/salviati-labs/cuckoofilter/internal/resp"
	"github.com/salviati-labs/cuckoofilter/pkg/config"
)

var (
	configPath = flag.String("config", "configs/cuckoonode.yaml", "path to configuration file")
	nodeID     = flag.String("node-id", "", "unique node identifier (overrides config)")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *nodeID != "" {
		cfg.Node.ID = *nodeID
	}
	if cfg.Node.ID == "" {
		cfg.Node.ID = cluster.GenerateNodeID()
	}

	logger, err := logging.InitializeFromConfig(cfg.Node.ID, logging.LogConfig{
		Level:         cfg.Logging.Level,
		EnableConsole: cfg.Logging.EnableConsole,
		EnableFile:    cfg.Logging.EnableFile,
		LogFile:       cfg.Logging.LogFile,
		LogDir:        cfg.Logging.LogDir,
		BufferSize:    cfg.Logging.BufferSize,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	startupID := logging.NewCorrelationID()
	ctx := logging.WithCorrelationID(context.Background(), startupID)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info(ctx, logging.ComponentMain, logging.ActionStart, "cuckoonode starting",
		map[string]interface{}{"node_id": cfg.Node.ID, "config_file": *configPath})

	filter, err := loadOrBuildFilter(cfg)
	if err != nil {
		logging.Fatal(ctx, logging.ComponentMain, logging.ActionStart, "failed to construct filter", err)
		os.Exit(1)
	}
	logging.Info(ctx, logging.ComponentFilter, logging.ActionStart, "filter ready",
		map[string]interface{}{
			"max_keys":             cfg.Filter.MaxKeys,
			"false_positive_rate":  cfg.Filter.FalsePositiveRate,
			"algorithm":            cfg.Filter.Algorithm,
			"expected_concurrency": cfg.Filter.ExpectedConcurrency,
			"num_buckets":          filter.NumBuckets(),
			"tag_bits":             filter.TagBits(),
		})

	var broadcaster cluster.Broadcaster
	var membership *cluster.GossipMembership
	if cfg.Cluster.Enabled {
		membership, err = cluster.NewGossipMembership(cluster.Config{
			NodeID:            cfg.Node.ID,
			ClusterName:       cfg.Cluster.ClusterName,
			BindAddress:       cfg.Network.RESPBindAddr,
			BindPort:          cfg.Network.GossipPort,
			AdvertiseAddress:  cfg.Network.AdvertiseAddr,
			RESPPort:          cfg.Network.RESPPort,
			SeedNodes:         cfg.Cluster.Seeds,
			JoinTimeout:       cfg.Cluster.JoinTimeout,
			HeartbeatInterval: cfg.Cluster.HeartbeatInterval,
		})
		if err != nil {
			logging.Fatal(ctx, logging.ComponentMain, logging.ActionStart, "failed to construct gossip membership", err)
			os.Exit(1)
		}
		broadcaster = membership
	}

	respAddr := fmt.Sprintf("%s:%d", cfg.Network.RESPBindAddr, cfg.Network.RESPPort)
	server := resp.NewServer(respAddr, filter, broadcaster, cfg.Node.ID)

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return server.Start(ctx)
	})

	if membership != nil {
		group.Go(func() error {
			if err := membership.Start(ctx); err != nil {
				return fmt.Errorf("gossip start: %w", err)
			}
			if err := membership.Join(gctx, cfg.Cluster.Seeds); err != nil {
				logging.Warn(gctx, logging.ComponentCluster, logging.ActionJoin,
					"failed to join seed nodes, continuing as a singleton cluster",
					map[string]interface{}{"error": err.Error()})
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		logging.Error(ctx, logging.ComponentMain, logging.ActionStart, "startup failed", err)
		os.Exit(1)
	}

	logging.Info(ctx, logging.ComponentMain, logging.ActionStart, "cuckoonode ready",
		map[string]interface{}{"resp_address": respAddr, "cluster_enabled": cfg.Cluster.Enabled})

	<-ctx.Done()
	logging.Info(ctx, logging.ComponentMain, logging.ActionStop, "shutting down")

	shutdown(filter, cfg, membership)
}

func loadOrBuildFilter(cfg *config.Config) (*cuckoo.Filter, error) {
	if cfg.Node.LoadSnapshot && cfg.Node.SnapshotPath != "" {
		if f, err := loadSnapshot(cfg.Node.SnapshotPath); err == nil {
			return f, nil
		}
	}
	return cfg.BuildFilter()
}

func loadSnapshot(path string) (*cuckoo.Filter, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return cuckoo.Load(f)
}

func shutdown(filter *cuckoo.Filter, cfg *config.Config, membership *cluster.GossipMembership) {
	if membership != nil {
		_ = membership.Leave(context.Background())
	}
	if cfg.Node.SaveOnSIGTERM && cfg.Node.SnapshotPath != "" {
		if f, err := os.Create(cfg.Node.SnapshotPath); err == nil {
			defer f.Close()
			_ = filter.Snapshot(f)
		}
	}
}
