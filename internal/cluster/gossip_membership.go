package cluster

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"sync"
	"time"

	"github.com/armon/go-metrics"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/serf/serf"

	"github.com/salviati-labs/cuckoofilter/internal/logging"
)

const mutationEventName = "filter-mutation"

// GossipMembership implements MembershipProvider and Broadcaster over
// Serf: ordinary Serf member events drive cluster membership, and
// filter mutations ride Serf's user-event channel as gob-encoded
// MutationEvent payloads.
type GossipMembership struct {
	config Config
	serf   *serf.Serf

	eventCh chan serf.Event

	mu          sync.RWMutex
	members     map[string]*Member
	local       *Member
	memberSubs  []chan<- MembershipEvent
	mutationSub chan MutationEvent

	startTime  time.Time
	eventCount int64
}

// NewGossipMembership constructs a membership provider. Start must be
// called before Join, Leave, or any mutation is broadcast.
func NewGossipMembership(cfg Config) (*GossipMembership, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	return &GossipMembership{
		config:  cfg,
		eventCh: make(chan serf.Event, 256),
		members: make(map[string]*Member),
		local: &Member{
			NodeID:  cfg.NodeID,
			Address: cfg.AdvertiseAddress,
			Port:    cfg.BindPort,
			Status:  NodeAlive,
			Metadata: map[string]string{
				"cluster":   cfg.ClusterName,
				"resp_port": fmt.Sprintf("%d", cfg.RESPPort),
			},
			JoinedAt: time.Now(),
			LastSeen: time.Now(),
		},
		mutationSub: make(chan MutationEvent, 256),
		startTime:   time.Now(),
	}, nil
}

// Start brings up the underlying Serf instance and begins processing
// gossip events in the background.
func (gm *GossipMembership) Start(ctx context.Context) error {
	conf := serf.DefaultConfig()
	conf.Init()
	conf.NodeName = gm.config.NodeID
	conf.MemberlistConfig.BindAddr = gm.config.BindAddress
	conf.MemberlistConfig.BindPort = gm.config.BindPort
	if gm.config.AdvertiseAddress != "" {
		conf.MemberlistConfig.AdvertiseAddr = gm.config.AdvertiseAddress
		conf.MemberlistConfig.AdvertisePort = gm.config.BindPort
	}
	conf.EventCh = gm.eventCh
	conf.MemberlistConfig.GossipInterval = time.Duration(gm.config.HeartbeatInterval) * time.Second
	conf.Tags = gm.local.Metadata

	instance, err := serf.Create(conf)
	if err != nil {
		return fmt.Errorf("cluster: create serf instance: %w", err)
	}
	gm.serf = instance

	go gm.processEvents(ctx)

	gm.mu.Lock()
	gm.members[gm.config.NodeID] = gm.local
	gm.mu.Unlock()

	return nil
}

// Join attempts each seed address in turn, aggregating failures with
// go-multierror so the caller sees every seed's failure reason rather
// than just the last one.
func (gm *GossipMembership) Join(ctx context.Context, seedNodes []string) error {
	if gm.serf == nil {
		return ErrNotStarted
	}
	if len(seedNodes) == 0 {
		return nil
	}

	joinCtx, cancel := context.WithTimeout(ctx, time.Duration(gm.config.JoinTimeout)*time.Second)
	defer cancel()

	var errs *multierror.Error
	for _, seed := range seedNodes {
		select {
		case <-joinCtx.Done():
			return fmt.Errorf("%w: %v", ErrJoinTimeout, joinCtx.Err())
		default:
		}

		num, err := gm.serf.Join([]string{seed}, false)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", seed, err))
			continue
		}
		if num > 0 {
			return nil
		}
	}
	if errs != nil {
		return fmt.Errorf("cluster: failed to join any seed node: %w", errs.ErrorOrNil())
	}
	return fmt.Errorf("cluster: no seed nodes responded")
}

// Leave gracefully departs the cluster and shuts down Serf.
func (gm *GossipMembership) Leave(ctx context.Context) error {
	if gm.serf == nil {
		return ErrNotStarted
	}
	if err := gm.serf.Leave(); err != nil {
		return fmt.Errorf("cluster: leave: %w", err)
	}
	if err := gm.serf.Shutdown(); err != nil {
		return fmt.Errorf("cluster: shutdown: %w", err)
	}

	gm.mu.Lock()
	for _, ch := range gm.memberSubs {
		close(ch)
	}
	gm.memberSubs = nil
	gm.mu.Unlock()
	return nil
}

func (gm *GossipMembership) GetMembers() []Member {
	gm.mu.RLock()
	defer gm.mu.RUnlock()
	out := make([]Member, 0, len(gm.members))
	for _, m := range gm.members {
		out = append(out, *m)
	}
	return out
}

func (gm *GossipMembership) GetMember(nodeID string) (*Member, bool) {
	gm.mu.RLock()
	defer gm.mu.RUnlock()
	m, ok := gm.members[nodeID]
	if !ok {
		return nil, false
	}
	cp := *m
	return &cp, true
}

func (gm *GossipMembership) GetAliveNodes() []Member {
	var alive []Member
	for _, m := range gm.GetMembers() {
		if m.Status == NodeAlive {
			alive = append(alive, m)
		}
	}
	return alive
}

func (gm *GossipMembership) Subscribe() <-chan MembershipEvent {
	ch := make(chan MembershipEvent, 100)
	gm.mu.Lock()
	gm.memberSubs = append(gm.memberSubs, ch)
	gm.mu.Unlock()
	return ch
}

// Mutations returns the channel filter mutations originated by other
// nodes arrive on. The channel is shared across all callers.
func (gm *GossipMembership) Mutations() <-chan MutationEvent {
	return gm.mutationSub
}

func (gm *GossipMembership) GetMetrics() MembershipMetrics {
	gm.mu.RLock()
	defer gm.mu.RUnlock()

	m := MembershipMetrics{
		TotalMembers: len(gm.members),
		ClusterAge:   time.Since(gm.startTime),
		EventCount:   gm.eventCount,
	}
	for _, member := range gm.members {
		switch member.Status {
		case NodeAlive:
			m.HealthyMembers++
		case NodeSuspected:
			m.SuspectedMembers++
		case NodeDead:
			m.FailedMembers++
		}
	}
	return m
}

func (gm *GossipMembership) IsHealthy() bool {
	if gm.serf == nil {
		return false
	}
	gm.mu.RLock()
	n := len(gm.members)
	gm.mu.RUnlock()
	return n > 0 && gm.serf.State() == serf.SerfAlive
}

// Broadcast gob-encodes event and fans it out as a Serf user event. Serf
// caps user-event payload size; callers broadcast one item at a time so
// a single mutation always fits.
func (gm *GossipMembership) Broadcast(ctx context.Context, event MutationEvent) error {
	if gm.serf == nil {
		return ErrNotStarted
	}
	event.OriginNodeID = gm.config.NodeID
	event.Timestamp = time.Now()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&event); err != nil {
		return fmt.Errorf("cluster: encode mutation: %w", err)
	}
	if err := gm.serf.UserEvent(mutationEventName, buf.Bytes(), false); err != nil {
		return err
	}
	metrics.IncrCounter([]string{"cluster", "mutation", "broadcast", string(event.Op)}, 1)
	return nil
}

func (gm *GossipMembership) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-gm.eventCh:
			gm.handleSerfEvent(event)
		}
	}
}

func (gm *GossipMembership) handleSerfEvent(event serf.Event) {
	gm.mu.Lock()
	gm.eventCount++
	gm.mu.Unlock()

	switch e := event.(type) {
	case serf.MemberEvent:
		for _, member := range e.Members {
			gm.processMemberChange(member, e.EventType())
		}
	case serf.UserEvent:
		gm.handleUserEvent(e)
	}
}

func (gm *GossipMembership) processMemberChange(serfMember serf.Member, eventType serf.EventType) {
	member := &Member{
		NodeID:   serfMember.Name,
		Address:  serfMember.Addr.String(),
		Port:     int(serfMember.Port),
		Metadata: serfMember.Tags,
		LastSeen: time.Now(),
	}

	var eventName MembershipEventType
	switch eventType {
	case serf.EventMemberJoin:
		member.Status = NodeAlive
		member.JoinedAt = time.Now()
		eventName = MemberJoined
		gm.mu.Lock()
		gm.members[member.NodeID] = member
		gm.mu.Unlock()
	case serf.EventMemberLeave:
		member.Status = NodeLeaving
		eventName = MemberLeft
		gm.mu.Lock()
		delete(gm.members, member.NodeID)
		gm.mu.Unlock()
	case serf.EventMemberFailed:
		member.Status = NodeDead
		eventName = MemberFailed
		gm.mu.Lock()
		if existing, ok := gm.members[member.NodeID]; ok {
			existing.Status = NodeDead
			existing.LastSeen = time.Now()
		}
		gm.mu.Unlock()
	case serf.EventMemberUpdate:
		member.Status = NodeAlive
		eventName = MemberUpdated
		gm.mu.Lock()
		if existing, ok := gm.members[member.NodeID]; ok {
			existing.Metadata = member.Metadata
			existing.LastSeen = time.Now()
		}
		gm.mu.Unlock()
	case serf.EventMemberReap:
		gm.mu.Lock()
		delete(gm.members, member.NodeID)
		gm.mu.Unlock()
		return
	default:
		return
	}

	metrics.IncrCounter([]string{"cluster", "member", string(eventName)}, 1)
	gm.mu.RLock()
	total := len(gm.members)
	gm.mu.RUnlock()
	metrics.SetGauge([]string{"cluster", "members", "total"}, float32(total))

	logging.Info(context.Background(), logging.ComponentCluster, string(eventName),
		"cluster membership transition",
		map[string]interface{}{"node_id": member.NodeID, "address": member.Address, "total_members": total})

	gm.notifySubscribers(MembershipEvent{Type: eventName, Member: *member, Timestamp: time.Now()})
}

func (gm *GossipMembership) notifySubscribers(event MembershipEvent) {
	gm.mu.RLock()
	defer gm.mu.RUnlock()
	for _, ch := range gm.memberSubs {
		select {
		case ch <- event:
		default:
			logging.Warn(context.Background(), logging.ComponentGossip, logging.ActionReplication,
				"membership event channel full, dropping event for a subscriber")
		}
	}
}

// handleUserEvent decodes an incoming filter-mutation broadcast and, if
// it did not originate locally, forwards it on Mutations() for the
// consumer (resp.Server) to apply to the local filter replica.
func (gm *GossipMembership) handleUserEvent(event serf.UserEvent) {
	if event.Name != mutationEventName {
		return
	}

	var mutation MutationEvent
	if err := gob.NewDecoder(bytes.NewReader(event.Payload)).Decode(&mutation); err != nil {
		logging.Warn(context.Background(), logging.ComponentGossip, logging.ActionReplication,
			"failed to decode mutation event", map[string]interface{}{"error": err.Error()})
		return
	}
	if mutation.OriginNodeID == gm.config.NodeID {
		return // our own broadcast, looped back by gossip
	}
	metrics.IncrCounter([]string{"cluster", "mutation", "received", string(mutation.Op)}, 1)

	select {
	case gm.mutationSub <- mutation:
	default:
		logging.Warn(context.Background(), logging.ComponentGossip, logging.ActionReplication,
			"mutation replication channel full, dropping inbound mutation")
	}
}
