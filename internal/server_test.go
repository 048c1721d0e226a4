package internal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kazz187/taskmirror/internal/admin"
	"github.com/kazz187/taskmirror/internal/config"
	"github.com/kazz187/taskmirror/internal/reconcile"
	"github.com/kazz187/taskmirror/internal/status"
)

type stubEngine struct{}

func (stubEngine) RunOnce(context.Context) (*reconcile.Report, error) { return &reconcile.Report{}, nil }
func (stubEngine) Reset(context.Context) error                        { return nil }
func (stubEngine) State() *reconcile.State                            { return &reconcile.State{} }

type stubLinks struct{}

func (stubLinks) Links() map[string]string { return map[string]string{} }

type stubStatus struct{}

func (stubStatus) Status() *status.Status { return &status.Status{} }

type stubRoster struct{}

func (stubRoster) Invalidate() {}

func newTestServer() *Server {
	env := &config.Env{}
	env.APIKey = "secret"
	return NewServer(env, admin.NewService(stubEngine{}, stubLinks{}, stubStatus{}, stubRoster{}))
}

func TestServer_APIKey(t *testing.T) {
	h := newTestServer().Handler()

	tests := []struct {
		name   string
		path   string
		header map[string]string
		want   int
	}{
		{name: "health is open", path: "/health", want: http.StatusOK},
		{name: "missing key", path: "/api/status", want: http.StatusUnauthorized},
		{name: "wrong key", path: "/api/status", header: map[string]string{"X-API-Key": "nope"}, want: http.StatusUnauthorized},
		{name: "x-api-key", path: "/api/status", header: map[string]string{"X-API-Key": "secret"}, want: http.StatusOK},
		{name: "bearer", path: "/api/status", header: map[string]string{"Authorization": "Bearer secret"}, want: http.StatusOK},
		{name: "unknown route", path: "/api/nope", header: map[string]string{"X-API-Key": "secret"}, want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestServer_ConnectAdmin(t *testing.T) {
	srv := httptest.NewServer(newTestServer().Handler())
	defer srv.Close()

	_, err := admin.NewClient(srv.Client(), srv.URL, "secret").Status(context.Background())
	assert.NoError(t, err)

	_, err = admin.NewClient(srv.Client(), srv.URL, "wrong").Status(context.Background())
	assert.Error(t, err)
}
