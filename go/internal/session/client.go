package session

import (
	"context"
	"strings"

	"connectrpc.com/connect"
)

// Client calls a remote session Service.
type Client struct {
	createPlay   *connect.Client[CreatePlayRequest, CreatePlayResponse]
	startRound   *connect.Client[PlayRequest, ControlResponse]
	submitAction *connect.Client[SubmitActionRequest, ControlResponse]
	pausePlay    *connect.Client[PlayRequest, ControlResponse]
	resumePlay   *connect.Client[PlayRequest, ControlResponse]
	resetPlay    *connect.Client[PlayRequest, ControlResponse]
	getSnapshot  *connect.Client[PlayRequest, ControlResponse]
	listGames    *connect.Client[ListGamesRequest, ListGamesResponse]
	listPlays    *connect.Client[ListPlaysRequest, ListPlaysResponse]
}

func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
	return &Client{
		createPlay:   connect.NewClient[CreatePlayRequest, CreatePlayResponse](httpClient, baseURL+CreatePlayProcedure, opts...),
		startRound:   connect.NewClient[PlayRequest, ControlResponse](httpClient, baseURL+StartRoundProcedure, opts...),
		submitAction: connect.NewClient[SubmitActionRequest, ControlResponse](httpClient, baseURL+SubmitActionProcedure, opts...),
		pausePlay:    connect.NewClient[PlayRequest, ControlResponse](httpClient, baseURL+PausePlayProcedure, opts...),
		resumePlay:   connect.NewClient[PlayRequest, ControlResponse](httpClient, baseURL+ResumePlayProcedure, opts...),
		resetPlay:    connect.NewClient[PlayRequest, ControlResponse](httpClient, baseURL+ResetPlayProcedure, opts...),
		getSnapshot:  connect.NewClient[PlayRequest, ControlResponse](httpClient, baseURL+GetSnapshotProcedure, opts...),
		listGames:    connect.NewClient[ListGamesRequest, ListGamesResponse](httpClient, baseURL+ListGamesProcedure, opts...),
		listPlays:    connect.NewClient[ListPlaysRequest, ListPlaysResponse](httpClient, baseURL+ListPlaysProcedure, opts...),
	}
}

func call[Req, Res any](ctx context.Context, c *connect.Client[Req, Res], req *Req) (*Res, error) {
	res, err := c.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) CreatePlay(ctx context.Context, req *CreatePlayRequest) (*CreatePlayResponse, error) {
	return call(ctx, c.createPlay, req)
}

func (c *Client) StartRound(ctx context.Context, playID string) (*ControlResponse, error) {
	return call(ctx, c.startRound, &PlayRequest{PlayID: playID})
}

func (c *Client) SubmitAction(ctx context.Context, req *SubmitActionRequest) (*ControlResponse, error) {
	return call(ctx, c.submitAction, req)
}

func (c *Client) PausePlay(ctx context.Context, playID string) (*ControlResponse, error) {
	return call(ctx, c.pausePlay, &PlayRequest{PlayID: playID})
}

func (c *Client) ResumePlay(ctx context.Context, playID string) (*ControlResponse, error) {
	return call(ctx, c.resumePlay, &PlayRequest{PlayID: playID})
}

func (c *Client) ResetPlay(ctx context.Context, playID string) (*ControlResponse, error) {
	return call(ctx, c.resetPlay, &PlayRequest{PlayID: playID})
}

func (c *Client) GetSnapshot(ctx context.Context, playID string) (*ControlResponse, error) {
	return call(ctx, c.getSnapshot, &PlayRequest{PlayID: playID})
}

func (c *Client) ListGames(ctx context.Context) (*ListGamesResponse, error) {
	return call(ctx, c.listGames, &ListGamesRequest{})
}

func (c *Client) ListPlays(ctx context.Context) (*ListPlaysResponse, error) {
	return call(ctx, c.listPlays, &ListPlaysRequest{})
}
