package health

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"shiftwatch/pkg/logx"
)

func TestEndpoints(t *testing.T) {
	s := New(":0", logx.Nop())

	cases := []struct {
		path string
		want string
	}{
		{"/", "Bot is running"},
		{"/health", `{"status":"healthy"}`},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		rec := httptest.NewRecorder()
		s.srv.Handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s: status %d", tc.path, rec.Code)
		}
		body, _ := io.ReadAll(rec.Body)
		if !strings.Contains(string(body), tc.want) {
			t.Fatalf("GET %s: body %q, want %q", tc.path, body, tc.want)
		}
	}
}
