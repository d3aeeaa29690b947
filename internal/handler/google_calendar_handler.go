package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/collegetrack/internal/calsync"
	"github.com/hitoshi/collegetrack/internal/model"
)

const oauthStateCookie = "gcal_oauth_state"

// コールバック後のリダイレクトで渡すエラーメッセージ
const (
	callbackErrNoCode       = "No authorization code received"
	callbackErrInvalidState = "Invalid state parameter"
	callbackErrExchange     = "Failed to exchange authorization code"
	callbackErrInternal     = "Internal server error"
)

// CalendarSyncServiceInterface はGoogleカレンダーハンドラーが必要とするサービスインターフェース。
type CalendarSyncServiceInterface interface {
	AuthCodeURL(state string) string
	Connect(ctx context.Context, user *model.User, code string) error
	Disconnect(ctx context.Context, user *model.User) error
	CreateRemoteEvent(ctx context.Context, user *model.User, in calsync.CreateRemoteInput) (*calsync.SyncResult, error)
}

// GoogleCalendarHandlerConfig はGoogleカレンダーハンドラーの設定。
type GoogleCalendarHandlerConfig struct {
	BaseURL      string
	CookieSecure bool
	// CookieDomain はstate Cookieのドメイン。空ならホスト限定Cookieになる。
	CookieDomain string
}

// GoogleCalendarHandler はGoogleカレンダー連携のHTTPハンドラー。
type GoogleCalendarHandler struct {
	service CalendarSyncServiceInterface
	config  GoogleCalendarHandlerConfig
}

// NewGoogleCalendarHandler はGoogleCalendarHandlerを生成する。
func NewGoogleCalendarHandler(service CalendarSyncServiceInterface, config GoogleCalendarHandlerConfig) *GoogleCalendarHandler {
	return &GoogleCalendarHandler{service: service, config: config}
}

type createRemoteEventRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	EventID     *int64    `json:"event_id"`
}

// syncResponse は外部カレンダー同期の結果。外部側の失敗でも200で返す。
type syncResponse struct {
	Success                 bool   `json:"success"`
	GoogleCalendarConnected bool   `json:"google_calendar_connected"`
	GoogleEventID           string `json:"google_event_id,omitempty"`
	Message                 string `json:"message,omitempty"`
}

// Connect はGoogleの同意画面へリダイレクトする。
// GET /api/calendar/google/connect
func (h *GoogleCalendarHandler) Connect(w http.ResponseWriter, r *http.Request) {
	if requireUser(w, r) == nil {
		return
	}

	state, err := generateState()
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/api/calendar/google",
		Domain:   h.config.CookieDomain,
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.service.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// Callback は同意画面からのリダイレクトを受け、トークンを保存してプロフィール画面へ戻す。
// GET /api/calendar/google/callback?code=xxx&state=yyy
func (h *GoogleCalendarHandler) Callback(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		h.redirectProfile(w, r, e)
		return
	}

	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != q.Get("state") {
		slog.Warn("oauth state mismatch", slog.Int64("user_id", user.ID))
		h.redirectProfile(w, r, callbackErrInvalidState)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/api/calendar/google",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	code := q.Get("code")
	if code == "" {
		h.redirectProfile(w, r, callbackErrNoCode)
		return
	}

	if err := h.service.Connect(r.Context(), user, code); err != nil {
		slog.Error("google calendar connect failed",
			slog.Int64("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		msg := callbackErrInternal
		if model.IsUpstreamAuth(err) {
			msg = callbackErrExchange
		}
		h.redirectProfile(w, r, msg)
		return
	}

	h.redirectProfile(w, r, "")
}

// Disconnect は保存済みのトークンを削除する。
// DELETE /api/calendar/google
func (h *GoogleCalendarHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}
	if err := h.service.Disconnect(r.Context(), user); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateEvent はGoogleカレンダーにイベントを作成する。
// 未接続やGoogle側の失敗は200の google_calendar_connected=false で返す。
// POST /api/calendar/google/events
func (h *GoogleCalendarHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	var req createRemoteEventRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.CreateRemoteEvent(r.Context(), user, calsync.CreateRemoteInput{
		Title:       req.Title,
		Description: req.Description,
		Start:       req.Start,
		End:         req.End,
		EventID:     req.EventID,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, syncResponse{
		Success:                 result.Success,
		GoogleCalendarConnected: result.Connected,
		GoogleEventID:           result.GoogleEventID,
		Message:                 result.Message,
	})
}

// redirectProfile はプロフィール画面へリダイレクトする。errMsgが空なら成功扱い。
func (h *GoogleCalendarHandler) redirectProfile(w http.ResponseWriter, r *http.Request, errMsg string) {
	q := url.Values{}
	if errMsg == "" {
		q.Set("success", "true")
	} else {
		q.Set("error", errMsg)
	}
	target := strings.TrimRight(h.config.BaseURL, "/") + "/profile?" + q.Encode()
	http.Redirect(w, r, target, http.StatusFound)
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
