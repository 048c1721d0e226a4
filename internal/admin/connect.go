package admin

import (
	"context"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"
)

// NewConnectHandler mounts the admin procedures under "/taskmirror.v1.AdminService/".
func NewConnectHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append(opts, connect.WithCodec(jsonCodec{}))

	mux := http.NewServeMux()
	mux.Handle(TriggerProcedure, connect.NewUnaryHandler(TriggerProcedure,
		func(ctx context.Context, _ *connect.Request[TriggerRequest]) (*connect.Response[TriggerResponse], error) {
			report, err := svc.Trigger(ctx)
			if err != nil {
				return nil, err
			}
			return connect.NewResponse(&TriggerResponse{Report: report}), nil
		}, opts...))
	mux.Handle(ResetProcedure, connect.NewUnaryHandler(ResetProcedure,
		func(ctx context.Context, _ *connect.Request[ResetRequest]) (*connect.Response[ResetResponse], error) {
			if err := svc.Reset(ctx); err != nil {
				return nil, err
			}
			return connect.NewResponse(&ResetResponse{ResetAt: time.Now().UTC()}), nil
		}, opts...))
	mux.Handle(StatusProcedure, connect.NewUnaryHandler(StatusProcedure,
		func(_ context.Context, _ *connect.Request[StatusRequest]) (*connect.Response[StatusResponse], error) {
			return connect.NewResponse(&StatusResponse{Status: svc.Status()}), nil
		}, opts...))
	mux.Handle(ExportStateProcedure, connect.NewUnaryHandler(ExportStateProcedure,
		func(_ context.Context, _ *connect.Request[ExportStateRequest]) (*connect.Response[ExportStateResponse], error) {
			return connect.NewResponse(&ExportStateResponse{State: svc.ExportState()}), nil
		}, opts...))
	mux.Handle(InvalidateRosterProcedure, connect.NewUnaryHandler(InvalidateRosterProcedure,
		func(ctx context.Context, _ *connect.Request[InvalidateRosterRequest]) (*connect.Response[InvalidateRosterResponse], error) {
			svc.InvalidateRoster(ctx)
			return connect.NewResponse(&InvalidateRosterResponse{}), nil
		}, opts...))

	return "/" + ServiceName + "/", mux
}

// Client calls a running server's admin service.
type Client struct {
	trigger          *connect.Client[TriggerRequest, TriggerResponse]
	reset            *connect.Client[ResetRequest, ResetResponse]
	status           *connect.Client[StatusRequest, StatusResponse]
	exportState      *connect.Client[ExportStateRequest, ExportStateResponse]
	invalidateRoster *connect.Client[InvalidateRosterRequest, InvalidateRosterResponse]
}

func NewClient(httpClient connect.HTTPClient, baseURL, apiKey string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append(opts,
		connect.WithCodec(jsonCodec{}),
		connect.WithInterceptors(apiKeyInterceptor(apiKey)),
	)
	return &Client{
		trigger:          connect.NewClient[TriggerRequest, TriggerResponse](httpClient, baseURL+TriggerProcedure, opts...),
		reset:            connect.NewClient[ResetRequest, ResetResponse](httpClient, baseURL+ResetProcedure, opts...),
		status:           connect.NewClient[StatusRequest, StatusResponse](httpClient, baseURL+StatusProcedure, opts...),
		exportState:      connect.NewClient[ExportStateRequest, ExportStateResponse](httpClient, baseURL+ExportStateProcedure, opts...),
		invalidateRoster: connect.NewClient[InvalidateRosterRequest, InvalidateRosterResponse](httpClient, baseURL+InvalidateRosterProcedure, opts...),
	}
}

func apiKeyInterceptor(apiKey string) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if req.Spec().IsClient && apiKey != "" {
				req.Header().Set("X-API-Key", apiKey)
			}
			return next(ctx, req)
		}
	}
}

func (c *Client) Trigger(ctx context.Context) (*TriggerResponse, error) {
	res, err := c.trigger.CallUnary(ctx, connect.NewRequest(&TriggerRequest{}))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) Reset(ctx context.Context) (*ResetResponse, error) {
	res, err := c.reset.CallUnary(ctx, connect.NewRequest(&ResetRequest{}))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	res, err := c.status.CallUnary(ctx, connect.NewRequest(&StatusRequest{}))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) ExportState(ctx context.Context) (*ExportStateResponse, error) {
	res, err := c.exportState.CallUnary(ctx, connect.NewRequest(&ExportStateRequest{}))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) InvalidateRoster(ctx context.Context) error {
	_, err := c.invalidateRoster.CallUnary(ctx, connect.NewRequest(&InvalidateRosterRequest{}))
	return err
}
