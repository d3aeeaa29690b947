package app

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

// TestRun_ServeCommand_FailsWithoutDatabase は接続できないDBで起動が失敗することを検証する。
func TestRun_ServeCommand_FailsWithoutDatabase(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	if err := Run(&buf, []string{"serve"}); err == nil {
		t.Fatal("Run(serve) should fail when the database is unreachable")
	}
}

func TestRun_WithMissingEnv_ReturnsError(t *testing.T) {
	setTestEnv(t)
	t.Setenv("DATABASE_URL", "")

	var buf bytes.Buffer
	if err := Run(&buf, []string{"serve"}); err == nil {
		t.Fatal("Run with missing env should return error")
	}
}

func serverPort(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("url.Parse() error = %v", err)
	}
	return u.Port()
}

func TestRun_Healthcheck(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"正常", http.StatusOK, false},
		{"DB停止中", http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/health" {
					t.Errorf("path = %s, want /health", r.URL.Path)
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()
			t.Setenv("SERVER_PORT", serverPort(t, srv))

			err := Run(&bytes.Buffer{}, []string{"healthcheck"})
			if (err != nil) != tt.wantErr {
				t.Errorf("Run(healthcheck) error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
