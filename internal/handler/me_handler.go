package handler

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"
)

type meResponse struct {
	ID                      int64      `json:"id"`
	Email                   string     `json:"email"`
	Name                    string     `json:"name"`
	GoogleCalendarConnected bool       `json:"google_calendar_connected"`
	GoogleTokenExpires      *time.Time `json:"google_token_expires,omitempty"`
}

// Me は現在のログインユーザー情報を返す。トークン自体は返さない。
// GET /api/me
func Me(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		ID:                      user.ID,
		Email:                   user.Email,
		Name:                    user.Name,
		GoogleCalendarConnected: user.CalendarConnected(),
		GoogleTokenExpires:      user.CalendarTokenExpires,
	})
}

// Pinger はデータベースの疎通確認インターフェース。*sql.DBが満たす。
type Pinger interface {
	PingContext(ctx context.Context) error
}

var _ Pinger = (*sql.DB)(nil)

// NewHealthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
// GET /health
func NewHealthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			slog.Error("health check failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
