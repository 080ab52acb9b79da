package session

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/mindgames/go/internal/games"
	"github.com/mcdev12/mindgames/go/internal/round"
	"github.com/mcdev12/mindgames/go/internal/telemetry"
)

// Presenter receives the snapshots of every managed play. PresentPlay runs
// inside a sequencer transition and must not block or call back into the
// Manager.
type Presenter interface {
	PresentPlay(playID string, snapshot round.Snapshot)
	ClosePlay(playID string)
}

type noopPresenter struct{}

func (noopPresenter) PresentPlay(string, round.Snapshot) {}
func (noopPresenter) ClosePlay(string)                   {}

type Config struct {
	// IdleTTL is how long a play may go without a control call before it
	// is reset and dropped.
	IdleTTL time.Duration
	// SweepInterval is how often Run looks for idle plays.
	SweepInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		IdleTTL:       30 * time.Minute,
		SweepInterval: time.Minute,
	}
}

type play struct {
	info     PlayInfo
	seq      *round.Sequencer
	gate     *round.Gate
	lastUsed time.Time
}

// Manager owns the sequencers of many concurrent plays, keyed by play ID.
type Manager struct {
	catalog   *games.Catalog
	sink      telemetry.Sink
	presenter Presenter
	clock     clockwork.Clock
	cfg       Config

	mu    sync.Mutex
	plays map[string]*play
}

type ManagerOption func(*Manager)

func WithManagerClock(c clockwork.Clock) ManagerOption { return func(m *Manager) { m.clock = c } }

func WithManagerSink(s telemetry.Sink) ManagerOption { return func(m *Manager) { m.sink = s } }

func WithManagerPresenter(p Presenter) ManagerOption { return func(m *Manager) { m.presenter = p } }

func NewManager(catalog *games.Catalog, cfg Config, opts ...ManagerOption) *Manager {
	m := &Manager{
		catalog:   catalog,
		sink:      telemetry.Discard,
		presenter: noopPresenter{},
		clock:     clockwork.NewRealClock(),
		cfg:       cfg,
		plays:     make(map[string]*play),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create builds a new play of gameID, Idle and ready for its first round.
func (m *Manager) Create(req CreatePlayRequest) (PlayInfo, round.Snapshot, error) {
	gameID := strings.TrimSpace(req.GameID)
	seed := req.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	cfg, scorer, err := m.catalog.Build(gameID, rand.New(rand.NewSource(seed)))
	if err != nil {
		return PlayInfo{}, round.Snapshot{}, err
	}

	id := uuid.NewString()
	seq, err := round.NewSequencer(cfg,
		round.WithClock(m.clock),
		round.WithSink(m.sink),
		round.WithScorer(scorer),
		round.WithLabels(gameID, req.PlayerID),
		round.WithPresenter(round.PresenterFunc(func(s round.Snapshot) {
			m.presenter.PresentPlay(id, s)
		})),
	)
	if err != nil {
		return PlayInfo{}, round.Snapshot{}, fmt.Errorf("build sequencer: %w", err)
	}

	now := m.clock.Now()
	p := &play{
		info: PlayInfo{
			PlayID:    id,
			GameID:    gameID,
			PlayerID:  req.PlayerID,
			CreatedAt: now.UTC(),
		},
		seq:      seq,
		gate:     round.NewGate(seq),
		lastUsed: now,
	}

	m.mu.Lock()
	m.plays[id] = p
	m.mu.Unlock()

	log.Info().
		Str("play_id", id).
		Str("game_id", gameID).
		Str("player_id", req.PlayerID).
		Int64("seed", seed).
		Msg("play created")

	p.info.State = seq.State()
	return p.info, seq.Snapshot(), nil
}

func (m *Manager) get(playID string) (*play, error) {
	if playID == "" {
		return nil, ErrInvalidPlayID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plays[playID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, playID)
	}
	p.lastUsed = m.clock.Now()
	return p, nil
}

func (m *Manager) control(playID string, fn func(p *play) bool) (bool, round.Snapshot, error) {
	p, err := m.get(playID)
	if err != nil {
		return false, round.Snapshot{}, err
	}
	ok := fn(p)
	return ok, p.seq.Snapshot(), nil
}

// Start activates the play's next round.
func (m *Manager) Start(playID string) (bool, round.Snapshot, error) {
	return m.control(playID, func(p *play) bool { return p.seq.Start() })
}

// Submit passes a player action through the play's input gate.
func (m *Manager) Submit(playID string, in round.Input) (bool, round.Snapshot, error) {
	return m.control(playID, func(p *play) bool { return p.gate.Submit(in) })
}

func (m *Manager) Pause(playID string) (bool, round.Snapshot, error) {
	return m.control(playID, func(p *play) bool { return p.seq.Pause() })
}

func (m *Manager) Resume(playID string) (bool, round.Snapshot, error) {
	return m.control(playID, func(p *play) bool { return p.seq.Resume() })
}

// Reset discards the play's session and starts over with a fresh one.
func (m *Manager) Reset(playID string) (bool, round.Snapshot, error) {
	return m.control(playID, func(p *play) bool {
		p.seq.Reset()
		return true
	})
}

func (m *Manager) Snapshot(playID string) (round.Snapshot, error) {
	p, err := m.get(playID)
	if err != nil {
		return round.Snapshot{}, err
	}
	return p.seq.Snapshot(), nil
}

// Close drops a play, cancelling anything it has pending.
func (m *Manager) Close(playID string) error {
	m.mu.Lock()
	p, ok := m.plays[playID]
	delete(m.plays, playID)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, playID)
	}
	m.shutdown(p)
	return nil
}

func (m *Manager) shutdown(p *play) {
	if p.seq.State() != round.StateFinished {
		p.seq.Reset()
	}
	m.presenter.ClosePlay(p.info.PlayID)
}

// List returns the managed plays, oldest first.
func (m *Manager) List() []PlayInfo {
	m.mu.Lock()
	plays := make([]*play, 0, len(m.plays))
	for _, p := range m.plays {
		plays = append(plays, p)
	}
	m.mu.Unlock()

	out := make([]PlayInfo, len(plays))
	for i, p := range plays {
		out[i] = p.info
		out[i].State = p.seq.State()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Games lists the catalog.
func (m *Manager) Games() []GameInfo {
	list := m.catalog.List()
	out := make([]GameInfo, len(list))
	for i, g := range list {
		out[i] = gameInfo(g)
	}
	return out
}

// Run drops idle plays until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := m.clock.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			m.sweep()
		}
	}
}

// sweep drops every play unused for longer than the idle TTL and returns
// how many it dropped.
func (m *Manager) sweep() int {
	cutoff := m.clock.Now().Add(-m.cfg.IdleTTL)

	m.mu.Lock()
	var expired []*play
	for id, p := range m.plays {
		if p.lastUsed.Before(cutoff) {
			expired = append(expired, p)
			delete(m.plays, id)
		}
	}
	m.mu.Unlock()

	for _, p := range expired {
		m.shutdown(p)
		log.Info().
			Str("play_id", p.info.PlayID).
			Str("game_id", p.info.GameID).
			Msg("idle play expired")
	}
	return len(expired)
}

// Shutdown drops every play.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	plays := m.plays
	m.plays = make(map[string]*play)
	m.mu.Unlock()
	for _, p := range plays {
		m.shutdown(p)
	}
}
