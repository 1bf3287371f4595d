// Package manager is the front of the voxroom core. It owns the agent
// registry, binds agents into media rooms with their audio pipelines, routes
// bus control messages to operations, and emits lifecycle events for
// observers.
//
// The manager serializes all registry mutations behind one mutex; room-level
// turn-taking is delegated to each room's arbiter. Network setup during
// attach happens outside the lock against a reserved slot, so a slow media
// server never stalls unrelated operations.
package manager

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/voxroom/voxroom/internal/agent"
	"github.com/voxroom/voxroom/internal/bus"
	"github.com/voxroom/voxroom/internal/config"
	"github.com/voxroom/voxroom/internal/event"
	"github.com/voxroom/voxroom/internal/fault"
	"github.com/voxroom/voxroom/internal/observe"
	"github.com/voxroom/voxroom/internal/room"
	"github.com/voxroom/voxroom/pkg/media"
	"github.com/voxroom/voxroom/pkg/provider/llm"
	"github.com/voxroom/voxroom/pkg/provider/stt"
	"github.com/voxroom/voxroom/pkg/provider/tts"
)

// MediaDialer creates one media-room client per binding.
type MediaDialer func(ctx context.Context) (media.RoomClient, error)

// Deps are the process-wide collaborators the manager drives. Gate, Voice,
// and Recognizer are shared across all agents; DialMedia is invoked once per
// room binding.
type Deps struct {
	Gate       *llm.Gate
	Voice      tts.Synthesizer
	Recognizer stt.Recognizer
	DialMedia  MediaDialer
}

// managed is one registered agent plus its room binding, if any.
type managed struct {
	agent   *agent.Agent
	roomID  string
	binding *binding
}

// roomState is the per-room slice of the registry: the arbiter, the
// conversation log, and the member set.
type roomState struct {
	id        string
	arbiter   *room.Arbiter
	log       *room.Log
	members   map[string]*managed
	turnStart time.Time
}

// Manager is the agent registry and room orchestrator. All methods are safe
// for concurrent use.
type Manager struct {
	limits   config.LimitsConfig
	pipeline config.PipelineConfig
	deps     Deps
	log      *slog.Logger
	events   *event.Emitter
	metrics  *observe.Metrics
	strategy room.SelectionStrategy

	busMu   sync.Mutex
	busConn bus.Bus
	subs    []bus.Subscription

	mu     sync.Mutex
	agents map[string]*managed
	rooms  map[string]*roomState
	closed bool
}

// Option customizes a Manager.
type Option func(*Manager)

// WithLogger replaces the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithStrategy replaces the responder selection strategy. The default picks
// uniformly among listening agents.
func WithStrategy(s room.SelectionStrategy) Option {
	return func(m *Manager) {
		if s != nil {
			m.strategy = s
		}
	}
}

// WithMetrics wires the OTel instruments. Nil leaves metrics off.
func WithMetrics(met *observe.Metrics) Option {
	return func(m *Manager) { m.metrics = met }
}

// New creates a manager. Zero-valued limits are filled with the defaults.
func New(limits config.LimitsConfig, pipeline config.PipelineConfig, deps Deps, opts ...Option) *Manager {
	cfg := config.Config{Limits: limits, Pipeline: pipeline}
	config.ApplyDefaults(&cfg)

	m := &Manager{
		limits:   cfg.Limits,
		pipeline: cfg.Pipeline,
		deps:     deps,
		log:      slog.Default(),
		events:   event.NewEmitter(0),
		strategy: room.NewRandomStrategy(time.Now().UnixNano()),
		agents:   make(map[string]*managed),
		rooms:    make(map[string]*roomState),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe registers an in-process event observer.
func (m *Manager) Subscribe() *event.Subscription {
	return m.events.Subscribe()
}

// CreateAgent registers a new agent. id may be empty to auto-generate one.
func (m *Manager) CreateAgent(id string, cfg agent.Config) (*agent.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fault.New(fault.KindNotFound, "manager: closed")
	}
	if len(m.agents) >= m.limits.GlobalAgentCap {
		return nil, fault.Errorf(fault.KindCapacityExceeded,
			"manager: global agent cap reached (%d)", m.limits.GlobalAgentCap)
	}
	if id != "" {
		if _, ok := m.agents[id]; ok {
			return nil, fault.Errorf(fault.KindAlreadyExists, "manager: agent %s already exists", id)
		}
	}

	a, err := agent.New(id, cfg, m.deps.Gate, m.deps.Voice,
		agent.WithHistoryCap(m.limits.HistoryCap),
		agent.WithSpeechQueueCap(m.limits.SpeechQueueCap),
		agent.WithTimeouts(m.limits.LLMTimeout, m.limits.TTSTimeout),
		agent.WithStatusCallback(m.onAgentStatus),
		agent.WithLogger(m.log),
	)
	if err != nil {
		return nil, err
	}

	m.agents[a.ID()] = &managed{agent: a}
	m.log.Info("agent created", "agent", a.ID(), "name", a.Name())
	m.emit(event.Event{Type: event.AgentCreated, AgentID: a.ID()})
	if m.metrics != nil {
		m.metrics.ActiveAgents.Add(context.Background(), 1)
	}
	return a, nil
}

// DeleteAgent detaches and removes an agent.
func (m *Manager) DeleteAgent(ctx context.Context, id string) error {
	m.mu.Lock()
	mg, ok := m.agents[id]
	m.mu.Unlock()
	if !ok {
		return fault.Errorf(fault.KindNotFound, "manager: agent %s not found", id)
	}

	if mg.roomID != "" {
		if err := m.Detach(ctx, id); err != nil && !fault.IsKind(err, fault.KindNotFound) {
			m.log.Warn("detach during delete failed", "agent", id, "error", err)
		}
	}

	m.mu.Lock()
	delete(m.agents, id)
	m.mu.Unlock()

	if m.deps.Gate != nil {
		m.deps.Gate.Forget(id)
	}
	m.log.Info("agent deleted", "agent", id)
	m.emit(event.Event{Type: event.AgentDeleted, AgentID: id})
	if m.metrics != nil {
		m.metrics.ActiveAgents.Add(context.Background(), -1)
	}
	return nil
}

// UpdateAgent replaces an agent's tuning, keeping its history and binding.
func (m *Manager) UpdateAgent(id string, cfg agent.Config) error {
	m.mu.Lock()
	mg, ok := m.agents[id]
	m.mu.Unlock()
	if !ok {
		return fault.Errorf(fault.KindNotFound, "manager: agent %s not found", id)
	}
	mg.agent.UpdateConfig(cfg)
	m.emit(event.Event{Type: event.AgentUpdated, AgentID: id})
	return nil
}

// GetAgent returns the agent with the given id.
func (m *Manager) GetAgent(id string) (*agent.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mg, ok := m.agents[id]
	if !ok {
		return nil, fault.Errorf(fault.KindNotFound, "manager: agent %s not found", id)
	}
	return mg.agent, nil
}

// AgentRoom returns the room an agent is bound to, or "".
func (m *Manager) AgentRoom(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mg, ok := m.agents[id]; ok {
		return mg.roomID
	}
	return ""
}

// ListAgents returns all registered agents sorted by id.
func (m *Manager) ListAgents() []*agent.Agent {
	m.mu.Lock()
	out := make([]*agent.Agent, 0, len(m.agents))
	for _, mg := range m.agents {
		out = append(out, mg.agent)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// RoomInfo is a point-in-time view of one room.
type RoomInfo struct {
	ID             string
	AgentIDs       []string
	CurrentSpeaker string
	QueueLen       int
	LogLen         int
}

// GetRoom returns a snapshot of the room with the given id.
func (m *Manager) GetRoom(roomID string) (RoomInfo, error) {
	m.mu.Lock()
	rs, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return RoomInfo{}, fault.Errorf(fault.KindNotFound, "manager: room %s not found", roomID)
	}
	ids := make([]string, 0, len(rs.members))
	for id := range rs.members {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	sort.Strings(ids)
	return RoomInfo{
		ID:             roomID,
		AgentIDs:       ids,
		CurrentSpeaker: rs.arbiter.CurrentSpeaker(),
		QueueLen:       rs.arbiter.QueueLen(),
		LogLen:         rs.log.Len(),
	}, nil
}

// RoomLog returns up to n recent conversation entries for a room.
func (m *Manager) RoomLog(roomID string, n int) ([]room.LogEntry, error) {
	m.mu.Lock()
	rs, ok := m.rooms[roomID]
	m.mu.Unlock()
	if !ok {
		return nil, fault.Errorf(fault.KindNotFound, "manager: room %s not found", roomID)
	}
	return rs.log.Recent(n), nil
}

// Stats summarizes the registry.
type Stats struct {
	Agents   int
	AgentCap int
	Rooms    int
	Bindings int
	Speaking int
}

// Stats returns a point-in-time summary.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Stats{
		Agents:   len(m.agents),
		AgentCap: m.limits.GlobalAgentCap,
		Rooms:    len(m.rooms),
	}
	for _, mg := range m.agents {
		if mg.binding != nil {
			s.Bindings++
		}
		if mg.agent.Status() == agent.StatusSpeaking {
			s.Speaking++
		}
	}
	return s
}

// Close tears everything down: bus subscriptions first so no new commands
// arrive, then every binding, then the event stream.
func (m *Manager) Close(ctx context.Context) error {
	m.DetachBus()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	ids := make([]string, 0, len(m.agents))
	for id, mg := range m.agents {
		if mg.roomID != "" {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.Detach(ctx, id); err != nil {
			m.log.Warn("detach during shutdown failed", "agent", id, "error", err)
		}
	}

	m.events.Close()
	m.log.Info("manager closed")
	return nil
}

// onAgentStatus is the per-agent status hook; it fans the change out to
// observers.
func (m *Manager) onAgentStatus(id string, s agent.Status) {
	m.emit(event.Event{Type: event.AgentStatusChanged, AgentID: id, Status: string(s)})
}

// emit delivers ev to in-process observers and mirrors it onto the bus event
// topic of the same name.
func (m *Manager) emit(ev event.Event) {
	if ev.TS.IsZero() {
		ev.TS = time.Now()
	}
	m.events.Emit(ev)

	m.busMu.Lock()
	b := m.busConn
	m.busMu.Unlock()
	if b == nil {
		return
	}
	payload, err := bus.Encode(ev)
	if err != nil {
		return
	}
	if err := b.Publish(string(ev.Type), payload); err != nil {
		m.log.Debug("event mirror dropped", "type", ev.Type, "error", err)
	}
}
