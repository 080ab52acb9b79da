package session

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mcdev12/mindgames/go/internal/games"
	"github.com/mcdev12/mindgames/go/internal/round"
)

const ServiceName = "mindgames.session.v1.SessionService"

const (
	CreatePlayProcedure   = "/" + ServiceName + "/CreatePlay"
	StartRoundProcedure   = "/" + ServiceName + "/StartRound"
	SubmitActionProcedure = "/" + ServiceName + "/SubmitAction"
	PausePlayProcedure    = "/" + ServiceName + "/PausePlay"
	ResumePlayProcedure   = "/" + ServiceName + "/ResumePlay"
	ResetPlayProcedure    = "/" + ServiceName + "/ResetPlay"
	GetSnapshotProcedure  = "/" + ServiceName + "/GetSnapshot"
	ListGamesProcedure    = "/" + ServiceName + "/ListGames"
	ListPlaysProcedure    = "/" + ServiceName + "/ListPlays"
)

// Service exposes a Manager over Connect.
type Service struct {
	manager *Manager
}

func NewService(manager *Manager) *Service {
	return &Service{manager: manager}
}

// Handler returns the path prefix to mount the service on and its handler.
func (s *Service) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(CreatePlayProcedure, connect.NewUnaryHandler(CreatePlayProcedure, s.CreatePlay, opts...))
	mux.Handle(StartRoundProcedure, connect.NewUnaryHandler(StartRoundProcedure, s.StartRound, opts...))
	mux.Handle(SubmitActionProcedure, connect.NewUnaryHandler(SubmitActionProcedure, s.SubmitAction, opts...))
	mux.Handle(PausePlayProcedure, connect.NewUnaryHandler(PausePlayProcedure, s.PausePlay, opts...))
	mux.Handle(ResumePlayProcedure, connect.NewUnaryHandler(ResumePlayProcedure, s.ResumePlay, opts...))
	mux.Handle(ResetPlayProcedure, connect.NewUnaryHandler(ResetPlayProcedure, s.ResetPlay, opts...))
	mux.Handle(GetSnapshotProcedure, connect.NewUnaryHandler(GetSnapshotProcedure, s.GetSnapshot, opts...))
	mux.Handle(ListGamesProcedure, connect.NewUnaryHandler(ListGamesProcedure, s.ListGames, opts...))
	mux.Handle(ListPlaysProcedure, connect.NewUnaryHandler(ListPlaysProcedure, s.ListPlays, opts...))
	return "/" + ServiceName + "/", mux
}

func (s *Service) CreatePlay(ctx context.Context, req *connect.Request[CreatePlayRequest]) (*connect.Response[CreatePlayResponse], error) {
	if req.Msg.GameID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("game_id is required"))
	}
	info, snap, err := s.manager.Create(*req.Msg)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&CreatePlayResponse{Play: info, Snapshot: snap}), nil
}

func (s *Service) StartRound(ctx context.Context, req *connect.Request[PlayRequest]) (*connect.Response[ControlResponse], error) {
	return controlResponse(s.manager.Start(req.Msg.PlayID))
}

func (s *Service) SubmitAction(ctx context.Context, req *connect.Request[SubmitActionRequest]) (*connect.Response[ControlResponse], error) {
	in := round.Input{Round: req.Msg.Round, Value: req.Msg.Action}
	return controlResponse(s.manager.Submit(req.Msg.PlayID, in))
}

func (s *Service) PausePlay(ctx context.Context, req *connect.Request[PlayRequest]) (*connect.Response[ControlResponse], error) {
	return controlResponse(s.manager.Pause(req.Msg.PlayID))
}

func (s *Service) ResumePlay(ctx context.Context, req *connect.Request[PlayRequest]) (*connect.Response[ControlResponse], error) {
	return controlResponse(s.manager.Resume(req.Msg.PlayID))
}

func (s *Service) ResetPlay(ctx context.Context, req *connect.Request[PlayRequest]) (*connect.Response[ControlResponse], error) {
	return controlResponse(s.manager.Reset(req.Msg.PlayID))
}

func (s *Service) GetSnapshot(ctx context.Context, req *connect.Request[PlayRequest]) (*connect.Response[ControlResponse], error) {
	snap, err := s.manager.Snapshot(req.Msg.PlayID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&ControlResponse{Accepted: true, Snapshot: snap}), nil
}

func (s *Service) ListGames(ctx context.Context, req *connect.Request[ListGamesRequest]) (*connect.Response[ListGamesResponse], error) {
	return connect.NewResponse(&ListGamesResponse{Games: s.manager.Games()}), nil
}

func (s *Service) ListPlays(ctx context.Context, req *connect.Request[ListPlaysRequest]) (*connect.Response[ListPlaysResponse], error) {
	return connect.NewResponse(&ListPlaysResponse{Plays: s.manager.List()}), nil
}

func controlResponse(ok bool, snap round.Snapshot, err error) (*connect.Response[ControlResponse], error) {
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&ControlResponse{Accepted: ok, Snapshot: snap}), nil
}

func toConnectError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, ErrInvalidPlayID), errors.Is(err, games.ErrUnknownGame), errors.Is(err, round.ErrInvalidConfig):
		return connect.NewError(connect.CodeInvalidArgument, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
