package session

import (
	"time"

	"github.com/mcdev12/mindgames/go/internal/games"
	"github.com/mcdev12/mindgames/go/internal/round"
)

// PlayInfo describes one managed play.
type PlayInfo struct {
	PlayID    string      `json:"play_id"`
	GameID    string      `json:"game_id"`
	PlayerID  string      `json:"player_id,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	State     round.State `json:"state"`
}

// GameInfo is the public part of a catalog entry.
type GameInfo struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Kind          games.Kind `json:"kind"`
	AutoAdvance   bool       `json:"auto_advance"`
	StopOnTimeout bool       `json:"stop_on_timeout"`
	StopOnMiss    bool       `json:"stop_on_miss"`
	RetryOnMiss   bool       `json:"retry_on_miss"`
}

func gameInfo(g games.Game) GameInfo {
	return GameInfo{
		ID:            g.ID,
		Name:          g.Name,
		Kind:          g.Kind,
		AutoAdvance:   g.AutoAdvance,
		StopOnTimeout: g.StopOnTimeout,
		StopOnMiss:    g.StopOnMiss,
		RetryOnMiss:   g.RetryOnMiss,
	}
}

type CreatePlayRequest struct {
	GameID   string `json:"game_id"`
	PlayerID string `json:"player_id,omitempty"`
	// Seed fixes round order and random outcomes; zero picks one.
	Seed int64 `json:"seed,omitempty"`
}

type CreatePlayResponse struct {
	Play     PlayInfo       `json:"play"`
	Snapshot round.Snapshot `json:"snapshot"`
}

// PlayRequest addresses a play for StartRound, PausePlay, ResumePlay,
// ResetPlay and GetSnapshot.
type PlayRequest struct {
	PlayID string `json:"play_id"`
}

type SubmitActionRequest struct {
	PlayID string `json:"play_id"`
	Round  int    `json:"round,omitempty"`
	Action any    `json:"action"`
}

// ControlResponse reports whether a control call changed anything and the
// play's snapshot afterwards.
type ControlResponse struct {
	Accepted bool           `json:"accepted"`
	Snapshot round.Snapshot `json:"snapshot"`
}

type ListGamesRequest struct{}

type ListGamesResponse struct {
	Games []GameInfo `json:"games"`
}

type ListPlaysRequest struct{}

type ListPlaysResponse struct {
	Plays []PlayInfo `json:"plays"`
}
