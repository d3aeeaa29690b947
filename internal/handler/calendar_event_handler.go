package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/collegetrack/internal/calendar"
	"github.com/hitoshi/collegetrack/internal/model"
	"github.com/hitoshi/collegetrack/internal/repository"
)

// CalendarEventServiceInterface はカレンダーイベントハンドラーが必要とするサービスインターフェース。
type CalendarEventServiceInterface interface {
	CreateOrUpdate(ctx context.Context, userID int64, in calendar.UpsertEventInput) (*calendar.UpsertEventResult, error)
	UpdateSchedule(ctx context.Context, userID, eventID int64, patch repository.SchedulePatch) error
	EventsByList(ctx context.Context, userID int64, now time.Time) ([]calendar.ListEvents, error)
	UnscheduledByList(ctx context.Context, userID int64) ([]calendar.UnscheduledList, error)
	SupplementDashboard(ctx context.Context, userID int64, now time.Time) ([]calendar.SupplementDashboardItem, error)
}

// CalendarEventHandler はカレンダーイベントのHTTPハンドラー。
type CalendarEventHandler struct {
	service CalendarEventServiceInterface
	now     func() time.Time
}

// NewCalendarEventHandler はCalendarEventHandlerを生成する。
func NewCalendarEventHandler(service CalendarEventServiceInterface) *CalendarEventHandler {
	return &CalendarEventHandler{service: service, now: time.Now}
}

// upsertEventRequest はPOST /api/calendar-eventsのボディ。
// supplement_idとdeadline_idはどちらか一方を指定する。
type upsertEventRequest struct {
	SupplementID *int64    `json:"supplement_id"`
	DeadlineID   *int64    `json:"deadline_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Status       *string   `json:"status"`
}

type upsertEventResponse struct {
	EventID  int64  `json:"event_id"`
	Action   string `json:"action"`
	Inserted bool   `json:"inserted"`
}

// updateScheduleRequest はPATCH /api/calendar-events/{id}のボディ。
type updateScheduleRequest struct {
	Start  *time.Time `json:"start"`
	End    *time.Time `json:"end"`
	Status *string    `json:"status"`
}

type eventResponse struct {
	ID                   int64     `json:"id"`
	SupplementID         *int64    `json:"supplement_id"`
	DeadlineID           *int64    `json:"deadline_id"`
	SchoolID             int64     `json:"school_id"`
	SchoolName           string    `json:"school_name"`
	Title                string    `json:"title"`
	Description          string    `json:"description"`
	Start                time.Time `json:"start"`
	End                  time.Time `json:"end"`
	Status               *string   `json:"status"`
	DerivedStatus        string    `json:"derived_status"`
	EffectiveStatus      string    `json:"effective_status"`
	EffectiveStatusLabel string    `json:"effective_status_label"`
	GoogleEventID        *string   `json:"google_event_id"`
}

type listEventsResponse struct {
	ListID   int64           `json:"list_id"`
	ListName string          `json:"list_name"`
	Events   []eventResponse `json:"events"`
}

type supplementResponse struct {
	ID          int64  `json:"id"`
	Prompt      string `json:"prompt"`
	Description string `json:"description"`
	WordCount   string `json:"word_count"`
}

type deadlineResponse struct {
	ID              int64     `json:"id"`
	ApplicationType string    `json:"application_type"`
	Date            time.Time `json:"date"`
}

type unscheduledSchoolResponse struct {
	SchoolID    int64                `json:"school_id"`
	SchoolName  string               `json:"school_name"`
	Supplements []supplementResponse `json:"supplements"`
	Deadlines   []deadlineResponse   `json:"deadlines"`
}

type unscheduledListResponse struct {
	ListID   int64                       `json:"list_id"`
	ListName string                      `json:"list_name"`
	Schools  []unscheduledSchoolResponse `json:"schools"`
}

type supplementDashboardResponse struct {
	SupplementID int64      `json:"supplement_id"`
	SchoolID     int64      `json:"school_id"`
	SchoolName   string     `json:"school_name"`
	Prompt       string     `json:"prompt"`
	Description  string     `json:"description"`
	WordCount    string     `json:"word_count"`
	ListID       int64      `json:"list_id"`
	ListName     string     `json:"list_name"`
	EventID      *int64     `json:"event_id"`
	EventStart   *time.Time `json:"event_start"`
	EventEnd     *time.Time `json:"event_end"`
	Status       string     `json:"status"`
	StatusLabel  string     `json:"status_label"`
}

// UpsertEvent はサプリメントまたは締切のイベントを作成・上書きする。
// POST /api/calendar-events
func (h *CalendarEventHandler) UpsertEvent(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	var req upsertEventRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	status, err := parseOptionalStatus(req.Status)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	result, err := h.service.CreateOrUpdate(r.Context(), user.ID, calendar.UpsertEventInput{
		SupplementID: req.SupplementID,
		DeadlineID:   req.DeadlineID,
		Title:        req.Title,
		Description:  req.Description,
		Start:        req.Start,
		End:          req.End,
		Status:       status,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	code := http.StatusOK
	if result.Inserted {
		code = http.StatusCreated
	}
	writeJSON(w, code, upsertEventResponse{EventID: result.EventID, Action: string(result.Action), Inserted: result.Inserted})
}

// UpdateSchedule はイベントの日時・ステータスを部分更新する。
// PATCH /api/calendar-events/{id}
func (h *CalendarEventHandler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}
	eventID, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	var req updateScheduleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	status, err := parseOptionalStatus(req.Status)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	patch := repository.SchedulePatch{Start: req.Start, End: req.End, Status: status}
	if err := h.service.UpdateSchedule(r.Context(), user.ID, eventID, patch); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListEvents はイベントをリストごとにまとめて返す。
// GET /api/calendar-events
func (h *CalendarEventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	groups, err := h.service.EventsByList(r.Context(), user.ID, h.now())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]listEventsResponse, len(groups))
	for i, g := range groups {
		events := make([]eventResponse, len(g.Events))
		for j, ev := range g.Events {
			events[j] = toEventResponse(ev)
		}
		resp[i] = listEventsResponse{ListID: g.ListID, ListName: g.ListName, Events: events}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListUnscheduled はイベント未作成のサプリメント・締切をリストごとに返す。
// GET /api/calendar-events/unscheduled
func (h *CalendarEventHandler) ListUnscheduled(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	lists, err := h.service.UnscheduledByList(r.Context(), user.ID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]unscheduledListResponse, len(lists))
	for i, l := range lists {
		schools := make([]unscheduledSchoolResponse, len(l.Schools))
		for j, s := range l.Schools {
			sups := make([]supplementResponse, len(s.Supplements))
			for k, sup := range s.Supplements {
				sups[k] = supplementResponse{ID: sup.ID, Prompt: sup.Prompt, Description: sup.Description, WordCount: sup.WordCount}
			}
			dls := make([]deadlineResponse, len(s.Deadlines))
			for k, d := range s.Deadlines {
				dls[k] = deadlineResponse{ID: d.ID, ApplicationType: string(d.ApplicationType), Date: d.Date}
			}
			schools[j] = unscheduledSchoolResponse{
				SchoolID:    s.SchoolID,
				SchoolName:  s.SchoolName,
				Supplements: sups,
				Deadlines:   dls,
			}
		}
		resp[i] = unscheduledListResponse{ListID: l.ListID, ListName: l.ListName, Schools: schools}
	}
	writeJSON(w, http.StatusOK, resp)
}

// SupplementDashboard はサプリメントごとの進捗を返す。
// GET /api/dashboard/supplements
func (h *CalendarEventHandler) SupplementDashboard(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	items, err := h.service.SupplementDashboard(r.Context(), user.ID, h.now())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]supplementDashboardResponse, len(items))
	for i, it := range items {
		resp[i] = supplementDashboardResponse{
			SupplementID: it.Supplement.ID,
			SchoolID:     it.Supplement.SchoolID,
			SchoolName:   it.SchoolName,
			Prompt:       it.Supplement.Prompt,
			Description:  it.Supplement.Description,
			WordCount:    it.Supplement.WordCount,
			ListID:       it.ListID,
			ListName:     it.ListName,
			EventID:      it.EventID,
			EventStart:   it.EventStart,
			EventEnd:     it.EventEnd,
			Status:       string(it.Status),
			StatusLabel:  it.Status.DisplayName(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseOptionalStatus(raw *string) (*model.EventStatus, error) {
	if raw == nil {
		return nil, nil
	}
	st, err := model.ParseEventStatus(*raw)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func toEventResponse(ev calendar.EventView) eventResponse {
	var status *string
	if ev.Status != nil {
		s := string(*ev.Status)
		status = &s
	}
	return eventResponse{
		ID:                   ev.ID,
		SupplementID:         ev.SupplementID,
		DeadlineID:           ev.DeadlineID,
		SchoolID:             ev.SchoolID,
		SchoolName:           ev.SchoolName,
		Title:                ev.Title,
		Description:          ev.Description,
		Start:                ev.Start,
		End:                  ev.End,
		Status:               status,
		DerivedStatus:        string(ev.DerivedStatus),
		EffectiveStatus:      string(ev.Effective),
		EffectiveStatusLabel: ev.Effective.DisplayName(),
		GoogleEventID:        ev.GoogleEventID,
	}
}
