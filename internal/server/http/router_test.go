package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRouteTable(t *testing.T) {
	mux := routes(RouterDeps{Handlers: &Handlers{}})

	cases := []struct {
		method, path, pattern string
	}{
		{http.MethodGet, "/api/v1/achievements", "GET /api/v1/achievements"},
		{http.MethodGet, "/api/v1/achievements/stats", "GET /api/v1/achievements/stats"},
		{http.MethodGet, "/api/v1/achievements/limits", "GET /api/v1/achievements/limits"},
		{http.MethodPost, "/api/v1/notes/n1/convert", "POST /api/v1/notes/{id}/convert"},
		{http.MethodPost, "/api/v1/notes/n1/transcribe", "POST /api/v1/notes/{id}/transcribe"},
		{http.MethodPost, "/api/v1/notifications/push-subscription", "POST /api/v1/notifications/push-subscription"},
		{http.MethodDelete, "/api/v1/notifications/push-subscription", "DELETE /api/v1/notifications/push-subscription"},
		{http.MethodPost, "/api/v1/ai/chat", "POST /api/v1/ai/chat"},
		{http.MethodPost, "/api/v1/tasks/t1/subtasks/reorder", "POST /api/v1/tasks/{id}/subtasks/reorder"},
		{http.MethodPost, "/api/v1/tasks/recover/ts1", "POST /api/v1/tasks/recover/{tombstone_id}"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		_, pattern := mux.Handler(req)
		if pattern != tc.pattern {
			t.Errorf("%s %s matched %q, want %q", tc.method, tc.path, pattern, tc.pattern)
		}
	}
}
