package server

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/PowerLink/config"
	"github.com/sifan077/PowerLink/internal/app/model"
	"github.com/sifan077/PowerLink/internal/app/service"
)

type stubRedirector struct{}

func (stubRedirector) Resolve(ctx context.Context, code string, rc service.RequestContext) (*model.Link, error) {
	if code == "known" {
		return &model.Link{OriginalURL: "https://example.com"}, nil
	}
	return nil, service.ErrNotFound
}

func newTestServer() *Server {
	cfg := config.Default()
	cfg.Auth.JWTSecret = "secret"
	return New(Dependencies{Config: cfg, Redirects: stubRedirector{}})
}

func TestServer_Routes(t *testing.T) {
	s := newTestServer()

	tests := []struct {
		method string
		path   string
		status int
	}{
		{method: "GET", path: "/health", status: fiber.StatusOK},
		{method: "GET", path: "/known", status: fiber.StatusFound},
		{method: "GET", path: "/unknown", status: fiber.StatusNotFound},
		{method: "GET", path: "/api/urls", status: fiber.StatusUnauthorized},
		{method: "DELETE", path: "/api/urls/some-id", status: fiber.StatusUnauthorized},
		{method: "OPTIONS", path: "/api/urls", status: fiber.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			resp, err := s.App().Test(httptest.NewRequest(tt.method, tt.path, nil))
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if resp.Header.Get("X-Request-ID") == "" {
				t.Fatal("expected a request id header")
			}
		})
	}
}
