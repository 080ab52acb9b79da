package autoplay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"connectrpc.com/connect"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/mindgames/go/internal/round"
	"github.com/mcdev12/mindgames/go/internal/session"
)

// Sessions is the part of the session API the player drives.
// *session.Client satisfies it.
type Sessions interface {
	CreatePlay(ctx context.Context, req *session.CreatePlayRequest) (*session.CreatePlayResponse, error)
	StartRound(ctx context.Context, playID string) (*session.ControlResponse, error)
	SubmitAction(ctx context.Context, req *session.SubmitActionRequest) (*session.ControlResponse, error)
	GetSnapshot(ctx context.Context, playID string) (*session.ControlResponse, error)
}

type Config struct {
	GameID   string
	PlayerID string
	Seed     int64
	// PollInterval is how often the player checks a play it is waiting on.
	PollInterval time.Duration
	// ThinkTime is how long the player waits before acting on a round.
	ThinkTime time.Duration
	// Clock times the player's waits. Defaults to the real clock.
	Clock clockwork.Clock
}

// Result is the outcome of one played session.
type Result struct {
	PlayID    string
	Final     round.Snapshot
	Submitted int
	Held      int
}

type Player struct {
	sessions Sessions
	strategy Strategy
	cfg      Config
}

func NewPlayer(sessions Sessions, strategy Strategy, cfg Config) *Player {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Player{sessions: sessions, strategy: strategy, cfg: cfg}
}

// Play creates a play and drives it until the session finishes or ctx is
// cancelled.
func (p *Player) Play(ctx context.Context) (Result, error) {
	created, err := p.sessions.CreatePlay(ctx, &session.CreatePlayRequest{
		GameID:   p.cfg.GameID,
		PlayerID: p.cfg.PlayerID,
		Seed:     p.cfg.Seed,
	})
	if err != nil {
		return Result{}, fmt.Errorf("create play: %w", err)
	}
	res := Result{PlayID: created.Play.PlayID}
	snap := created.Snapshot
	handled := 0

	log.Info().
		Str("play_id", res.PlayID).
		Str("game_id", p.cfg.GameID).
		Int("rounds", snap.TotalRounds).
		Msg("autoplay started")

	for snap.Status != round.StateFinished {
		switch snap.Status {
		case round.StateIdle:
			ctrl, err := p.sessions.StartRound(ctx, res.PlayID)
			if err != nil {
				return res, fmt.Errorf("start round: %w", err)
			}
			if ctrl.Accepted {
				snap = ctrl.Snapshot
				continue
			}

		case round.StateActive:
			if snap.RoundIndex == handled {
				break
			}
			handled = snap.RoundIndex
			submitted, err := p.playRound(ctx, res.PlayID, snap)
			if err != nil {
				return res, err
			}
			if submitted {
				res.Submitted++
			} else {
				res.Held++
			}
		}

		if err := p.sleep(ctx, p.cfg.PollInterval); err != nil {
			return res, err
		}
		ctrl, err := p.sessions.GetSnapshot(ctx, res.PlayID)
		if err != nil {
			return res, fmt.Errorf("get snapshot: %w", err)
		}
		snap = ctrl.Snapshot
	}

	res.Final = snap
	log.Info().
		Str("play_id", res.PlayID).
		Str("game_id", p.cfg.GameID).
		Int("score", snap.Score).
		Int("submitted", res.Submitted).
		Int("held", res.Held).
		Msg("autoplay finished")
	return res, nil
}

func (p *Player) playRound(ctx context.Context, playID string, snap round.Snapshot) (bool, error) {
	action, ok, err := p.strategy.Choose(ctx, snap)
	if err != nil {
		return false, fmt.Errorf("choose action for round %d: %w", snap.RoundIndex, err)
	}
	if !ok {
		return false, nil
	}
	if err := p.sleep(ctx, p.cfg.ThinkTime); err != nil {
		return false, err
	}
	ctrl, err := p.sessions.SubmitAction(ctx, &session.SubmitActionRequest{
		PlayID: playID,
		Round:  snap.RoundIndex,
		Action: action,
	})
	if err != nil {
		return false, fmt.Errorf("submit round %d: %w", snap.RoundIndex, err)
	}
	log.Debug().
		Str("play_id", playID).
		Int("round", snap.RoundIndex).
		Interface("action", action).
		Bool("accepted", ctrl.Accepted).
		Msg("autoplay submitted")
	return ctrl.Accepted, nil
}

func (p *Player) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := p.cfg.Clock.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.Chan():
		return nil
	}
}

// IsCancelled reports whether err came from the player's context ending.
func IsCancelled(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	code := connect.CodeOf(err)
	return code == connect.CodeCanceled || code == connect.CodeDeadlineExceeded
}
