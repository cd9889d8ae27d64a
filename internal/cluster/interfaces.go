// Package cluster provides gossip-based membership and full-replica
// mutation broadcast for a fleet of nodes that each hold an identical
// cuckoo filter. There is no sharding: every node applies every
// mutation, so there is no routing or key-ownership concept here.
package cluster

import (
	"context"
	"fmt"
	"time"
)

// Config configures a node's membership in the gossip cluster.
type Config struct {
	NodeID      string `yaml:"node_id" json:"node_id"`
	ClusterName string `yaml:"cluster_name" json:"cluster_name"`

	BindAddress      string `yaml:"bind_address" json:"bind_address"`
	BindPort         int    `yaml:"bind_port" json:"bind_port"`
	AdvertiseAddress string `yaml:"advertise_address" json:"advertise_address"`
	RESPPort         int    `yaml:"resp_port" json:"resp_port"`

	SeedNodes []string `yaml:"seed_nodes" json:"seed_nodes"`

	JoinTimeout       int `yaml:"join_timeout_seconds" json:"join_timeout_seconds"`
	HeartbeatInterval int `yaml:"heartbeat_interval_seconds" json:"heartbeat_interval_seconds"`
}

// DefaultConfig returns a usable default; callers must still set NodeID.
func DefaultConfig() Config {
	return Config{
		ClusterName:       "cuckoofilter",
		BindAddress:       "0.0.0.0",
		BindPort:          7946,
		SeedNodes:         []string{},
		JoinTimeout:       30,
		HeartbeatInterval: 5,
	}
}

// NodeStatus is the health status of a cluster member.
type NodeStatus int

const (
	NodeAlive NodeStatus = iota
	NodeSuspected
	NodeDead
	NodeLeaving
)

func (s NodeStatus) String() string {
	switch s {
	case NodeAlive:
		return "alive"
	case NodeSuspected:
		return "suspected"
	case NodeDead:
		return "dead"
	case NodeLeaving:
		return "leaving"
	default:
		return "unknown"
	}
}

// Member describes one node in the cluster.
type Member struct {
	NodeID   string            `json:"node_id"`
	Address  string            `json:"address"`
	Port     int               `json:"port"`
	Status   NodeStatus        `json:"status"`
	Metadata map[string]string `json:"metadata"`
	LastSeen time.Time         `json:"last_seen"`
	JoinedAt time.Time         `json:"joined_at"`
}

// MembershipEventType categorizes a MembershipEvent.
type MembershipEventType string

const (
	MemberJoined  MembershipEventType = "joined"
	MemberLeft    MembershipEventType = "left"
	MemberFailed  MembershipEventType = "failed"
	MemberUpdated MembershipEventType = "updated"
)

// MembershipEvent reports a membership change as it is observed.
type MembershipEvent struct {
	Type      MembershipEventType
	Member    Member
	Timestamp time.Time
}

// MembershipMetrics summarizes the current view of the cluster.
type MembershipMetrics struct {
	TotalMembers     int
	HealthyMembers   int
	SuspectedMembers int
	FailedMembers    int
	ClusterAge       time.Duration
	EventCount       int64
}

// MembershipProvider manages gossip-based cluster membership.
type MembershipProvider interface {
	Start(ctx context.Context) error
	Join(ctx context.Context, seedNodes []string) error
	Leave(ctx context.Context) error
	GetMembers() []Member
	GetMember(nodeID string) (*Member, bool)
	GetAliveNodes() []Member
	Subscribe() <-chan MembershipEvent
	GetMetrics() MembershipMetrics
	IsHealthy() bool
}

// MutationOp identifies the kind of filter mutation being replicated.
type MutationOp string

const (
	OpPut    MutationOp = "put"
	OpDelete MutationOp = "delete"
)

// MutationEvent is one filter mutation broadcast to every replica.
// OriginNodeID lets a receiving node ignore echoes of its own mutations.
type MutationEvent struct {
	Op            MutationOp
	Item          []byte
	OriginNodeID  string
	CorrelationID string
	Timestamp     time.Time
}

// Broadcaster distributes filter mutations to every other node holding
// a replica of the same filter, and delivers mutations originated
// elsewhere to the local node.
type Broadcaster interface {
	Broadcast(ctx context.Context, event MutationEvent) error
	Mutations() <-chan MutationEvent
}

var (
	ErrNotStarted           = fmt.Errorf("cluster: membership provider not started")
	ErrInvalidConfiguration = fmt.Errorf("cluster: invalid configuration")
	ErrJoinTimeout          = fmt.Errorf("cluster: timeout joining cluster")
)

// ValidateConfig checks that a Config is usable.
func ValidateConfig(cfg Config) error {
	if cfg.NodeID == "" {
		return fmt.Errorf("node_id is required: %w", ErrInvalidConfiguration)
	}
	if cfg.ClusterName == "" {
		return fmt.Errorf("cluster_name is required: %w", ErrInvalidConfiguration)
	}
	if cfg.BindPort <= 0 || cfg.BindPort > 65535 {
		return fmt.Errorf("bind_port must be between 1 and 65535: %w", ErrInvalidConfiguration)
	}
	if cfg.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat_interval must be positive: %w", ErrInvalidConfiguration)
	}
	return nil
}

// GenerateNodeID produces a default node identifier when none is configured.
func GenerateNodeID() string {
	return fmt.Sprintf("node-%d", time.Now().UnixNano())
}
