package handler

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/collegetrack/internal/calendar"
	"github.com/hitoshi/collegetrack/internal/calsync"
	"github.com/hitoshi/collegetrack/internal/listentry"
	"github.com/hitoshi/collegetrack/internal/middleware"
	"github.com/hitoshi/collegetrack/internal/model"
	"github.com/hitoshi/collegetrack/internal/repository"
	"github.com/hitoshi/collegetrack/internal/webhook"
)

// --- モック定義 ---

type mockListService struct {
	createOrUpdateFn   func(ctx context.Context, userID int64, in listentry.AssignInput) (*listentry.AssignResult, error)
	removeFn           func(ctx context.Context, userID, entryID int64) error
	createListFn       func(ctx context.Context, userID int64, name string) (*model.List, error)
	listsWithEntriesFn func(ctx context.Context, userID int64) ([]listentry.ListWithSchools, error)
	schoolDashboardFn  func(ctx context.Context, userID int64) ([]repository.SchoolDashboardRow, error)
}

func (m *mockListService) CreateOrUpdate(ctx context.Context, userID int64, in listentry.AssignInput) (*listentry.AssignResult, error) {
	return m.createOrUpdateFn(ctx, userID, in)
}

func (m *mockListService) Remove(ctx context.Context, userID, entryID int64) error {
	if m.removeFn != nil {
		return m.removeFn(ctx, userID, entryID)
	}
	return nil
}

func (m *mockListService) CreateList(ctx context.Context, userID int64, name string) (*model.List, error) {
	return m.createListFn(ctx, userID, name)
}

func (m *mockListService) ListsWithEntries(ctx context.Context, userID int64) ([]listentry.ListWithSchools, error) {
	if m.listsWithEntriesFn != nil {
		return m.listsWithEntriesFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockListService) SchoolDashboard(ctx context.Context, userID int64) ([]repository.SchoolDashboardRow, error) {
	if m.schoolDashboardFn != nil {
		return m.schoolDashboardFn(ctx, userID)
	}
	return nil, nil
}

type mockCalendarEventService struct {
	createOrUpdateFn      func(ctx context.Context, userID int64, in calendar.UpsertEventInput) (*calendar.UpsertEventResult, error)
	updateScheduleFn      func(ctx context.Context, userID, eventID int64, patch repository.SchedulePatch) error
	eventsByListFn        func(ctx context.Context, userID int64, now time.Time) ([]calendar.ListEvents, error)
	unscheduledByListFn   func(ctx context.Context, userID int64) ([]calendar.UnscheduledList, error)
	supplementDashboardFn func(ctx context.Context, userID int64, now time.Time) ([]calendar.SupplementDashboardItem, error)
}

func (m *mockCalendarEventService) CreateOrUpdate(ctx context.Context, userID int64, in calendar.UpsertEventInput) (*calendar.UpsertEventResult, error) {
	return m.createOrUpdateFn(ctx, userID, in)
}

func (m *mockCalendarEventService) UpdateSchedule(ctx context.Context, userID, eventID int64, patch repository.SchedulePatch) error {
	return m.updateScheduleFn(ctx, userID, eventID, patch)
}

func (m *mockCalendarEventService) EventsByList(ctx context.Context, userID int64, now time.Time) ([]calendar.ListEvents, error) {
	if m.eventsByListFn != nil {
		return m.eventsByListFn(ctx, userID, now)
	}
	return nil, nil
}

func (m *mockCalendarEventService) UnscheduledByList(ctx context.Context, userID int64) ([]calendar.UnscheduledList, error) {
	if m.unscheduledByListFn != nil {
		return m.unscheduledByListFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockCalendarEventService) SupplementDashboard(ctx context.Context, userID int64, now time.Time) ([]calendar.SupplementDashboardItem, error) {
	if m.supplementDashboardFn != nil {
		return m.supplementDashboardFn(ctx, userID, now)
	}
	return nil, nil
}

type mockCalendarSyncService struct {
	authCodeURLFn func(state string) string
	connectFn     func(ctx context.Context, user *model.User, code string) error
	disconnectFn  func(ctx context.Context, user *model.User) error
	createFn      func(ctx context.Context, user *model.User, in calsync.CreateRemoteInput) (*calsync.SyncResult, error)
}

func (m *mockCalendarSyncService) AuthCodeURL(state string) string {
	if m.authCodeURLFn != nil {
		return m.authCodeURLFn(state)
	}
	return "https://accounts.google.com/o/oauth2/auth?state=" + state
}

func (m *mockCalendarSyncService) Connect(ctx context.Context, user *model.User, code string) error {
	if m.connectFn != nil {
		return m.connectFn(ctx, user, code)
	}
	return nil
}

func (m *mockCalendarSyncService) Disconnect(ctx context.Context, user *model.User) error {
	if m.disconnectFn != nil {
		return m.disconnectFn(ctx, user)
	}
	return nil
}

func (m *mockCalendarSyncService) CreateRemoteEvent(ctx context.Context, user *model.User, in calsync.CreateRemoteInput) (*calsync.SyncResult, error) {
	return m.createFn(ctx, user, in)
}

type mockWebhookVerifier struct {
	verifyFn func(payload []byte, headers http.Header) (*webhook.Event, error)
}

func (m *mockWebhookVerifier) Verify(payload []byte, headers http.Header) (*webhook.Event, error) {
	return m.verifyFn(payload, headers)
}

type mockWebhookProcessor struct {
	handled []string
	err     error
}

func (m *mockWebhookProcessor) Handle(ctx context.Context, evt *webhook.Event) error {
	m.handled = append(m.handled, evt.Type)
	return m.err
}

type mockUserResolver struct {
	users map[string]*model.User
}

func (m *mockUserResolver) FindByAuthSubject(ctx context.Context, subject string) (*model.User, error) {
	return m.users[subject], nil
}

type mockPinger struct {
	err error
}

func (m *mockPinger) PingContext(ctx context.Context) error { return m.err }

// --- ヘルパー ---

type apiErrorBody = middleware.ErrorResponseBody

var testUser = &model.User{ID: 1, AuthSubjectID: "user_test", Email: "student@example.com", Name: "Test Student"}

// authedRequest は認証済みユーザーをコンテキストに持つリクエストを作る。
func authedRequest(method, target string, body any) *http.Request {
	var r io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			r = bytes.NewBufferString(b)
		default:
			buf, _ := json.Marshal(b)
			r = bytes.NewReader(buf)
		}
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	return req.WithContext(middleware.ContextWithUser(req.Context(), testUser))
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v\nbody: %s", err, w.Body.String())
	}
	return v
}

func ptr[T any](v T) *T { return &v }

type testRouter struct {
	handler http.Handler
	key     *rsa.PrivateKey
	deps    *RouterDeps
}

// newTestRouter は全依存をモックにしたルーターを構築する。
func newTestRouter(t *testing.T) *testRouter {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfigPerMinute(120, 1))
	t.Cleanup(rl.Stop)

	deps := &RouterDeps{
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		ClerkPublicKey:    &key.PublicKey,
		Users:             &mockUserResolver{users: map[string]*model.User{"user_test": testUser}},
		DB:                &mockPinger{},
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "# metrics")
		}),
		WebhookVerifier: &mockWebhookVerifier{verifyFn: func(payload []byte, headers http.Header) (*webhook.Event, error) {
			return &webhook.Event{Type: webhook.EventUserCreated}, nil
		}},
		WebhookProcessor: &mockWebhookProcessor{},
		ListService: &mockListService{
			createListFn: func(ctx context.Context, userID int64, name string) (*model.List, error) {
				return &model.List{ID: 10, UserID: userID, Name: name}, nil
			},
		},
		CalendarEventService: &mockCalendarEventService{},
		CalendarSyncService: &mockCalendarSyncService{
			createFn: func(ctx context.Context, user *model.User, in calsync.CreateRemoteInput) (*calsync.SyncResult, error) {
				return &calsync.SyncResult{Success: true, Connected: true, GoogleEventID: "g-1"}, nil
			},
		},
		GoogleCalendarConfig: GoogleCalendarHandlerConfig{BaseURL: "http://localhost:3000"},
	}
	return &testRouter{handler: NewRouter(deps), key: key, deps: deps}
}

func (tr *testRouter) token(t *testing.T, subject string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(tr.key)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return s
}

func (tr *testRouter) do(t *testing.T, method, target string, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, r)
	if authed {
		req.Header.Set("Authorization", "Bearer "+tr.token(t, "user_test"))
	}
	w := httptest.NewRecorder()
	tr.handler.ServeHTTP(w, req)
	return w
}
