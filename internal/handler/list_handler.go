package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/collegetrack/internal/listentry"
	"github.com/hitoshi/collegetrack/internal/model"
	"github.com/hitoshi/collegetrack/internal/repository"
)

// ListServiceInterface はリストハンドラーが必要とするサービスインターフェース。
type ListServiceInterface interface {
	CreateOrUpdate(ctx context.Context, userID int64, in listentry.AssignInput) (*listentry.AssignResult, error)
	Remove(ctx context.Context, userID, entryID int64) error
	CreateList(ctx context.Context, userID int64, name string) (*model.List, error)
	ListsWithEntries(ctx context.Context, userID int64) ([]listentry.ListWithSchools, error)
	SchoolDashboard(ctx context.Context, userID int64) ([]repository.SchoolDashboardRow, error)
}

// ListHandler はリストとリストエントリのHTTPハンドラー。
type ListHandler struct {
	service ListServiceInterface
}

// NewListHandler はListHandlerを生成する。
func NewListHandler(service ListServiceInterface) *ListHandler {
	return &ListHandler{service: service}
}

type listResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type listedSchoolResponse struct {
	EntryID    int64  `json:"entry_id"`
	SchoolID   int64  `json:"school_id"`
	SchoolName string `json:"school_name"`
	DeadlineID *int64 `json:"deadline_id"`
}

type listWithSchoolsResponse struct {
	ListID   int64                  `json:"list_id"`
	ListName string                 `json:"list_name"`
	Schools  []listedSchoolResponse `json:"schools"`
}

type listEntryResponse struct {
	ID         int64     `json:"id"`
	ListID     int64     `json:"list_id"`
	SchoolID   int64     `json:"school_id"`
	DeadlineID *int64    `json:"deadline_id"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type assignResponse struct {
	Entry       listEntryResponse `json:"entry"`
	Action      string            `json:"action"`
	CreatedList *listResponse     `json:"created_list,omitempty"`
}

type schoolDashboardResponse struct {
	EntryID         int64      `json:"entry_id"`
	SchoolID        int64      `json:"school_id"`
	SchoolName      string     `json:"school_name"`
	ListID          int64      `json:"list_id"`
	ListName        string     `json:"list_name"`
	DeadlineID      *int64     `json:"deadline_id"`
	ApplicationType *string    `json:"application_type"`
	DeadlineDate    *time.Time `json:"deadline_date"`
	SupplementCount int        `json:"supplement_count"`
}

type createListRequest struct {
	Name string `json:"name"`
}

// assignRequest はPUT /api/list-entriesのボディ。list_idとnew_list_nameはどちらか一方を指定する。
type assignRequest struct {
	SchoolID    int64   `json:"school_id"`
	ListID      *int64  `json:"list_id"`
	NewListName *string `json:"new_list_name"`
	DeadlineID  *int64  `json:"deadline_id"`
}

// ListLists はユーザーのリストと所属する学校を返す。
// GET /api/lists
func (h *ListHandler) ListLists(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	lists, err := h.service.ListsWithEntries(r.Context(), user.ID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]listWithSchoolsResponse, len(lists))
	for i, l := range lists {
		schools := make([]listedSchoolResponse, len(l.Schools))
		for j, s := range l.Schools {
			schools[j] = listedSchoolResponse{
				EntryID:    s.EntryID,
				SchoolID:   s.SchoolID,
				SchoolName: s.SchoolName,
				DeadlineID: s.DeadlineID,
			}
		}
		resp[i] = listWithSchoolsResponse{ListID: l.ListID, ListName: l.ListName, Schools: schools}
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateList はリストを作成する。
// POST /api/lists
func (h *ListHandler) CreateList(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	var req createListRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	list, err := h.service.CreateList(r.Context(), user.ID, req.Name)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toListResponse(list))
}

// AssignSchool は学校をリストに割り当てる。既に割り当て済みなら移動する。
// PUT /api/list-entries
func (h *ListHandler) AssignSchool(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	var req assignRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.CreateOrUpdate(r.Context(), user.ID, listentry.AssignInput{
		SchoolID:    req.SchoolID,
		ListID:      req.ListID,
		NewListName: req.NewListName,
		DeadlineID:  req.DeadlineID,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := assignResponse{
		Entry: listEntryResponse{
			ID:         result.Entry.ID,
			ListID:     result.Entry.ListID,
			SchoolID:   result.Entry.SchoolID,
			DeadlineID: result.Entry.DeadlineID,
			UpdatedAt:  result.Entry.UpdatedAt,
		},
		Action: string(result.Action),
	}
	if result.CreatedList != nil {
		l := toListResponse(result.CreatedList)
		resp.CreatedList = &l
	}

	status := http.StatusOK
	if result.Action == model.ActionCreated {
		status = http.StatusCreated
	}
	writeJSON(w, status, resp)
}

// RemoveEntry は学校をリストから外す。存在しない場合も204を返す。
// DELETE /api/list-entries/{id}
func (h *ListHandler) RemoveEntry(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}
	entryID, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.Remove(r.Context(), user.ID, entryID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SchoolDashboard は学校ダッシュボードを返す。
// GET /api/dashboard/schools
func (h *ListHandler) SchoolDashboard(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	rows, err := h.service.SchoolDashboard(r.Context(), user.ID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]schoolDashboardResponse, len(rows))
	for i, row := range rows {
		var appType *string
		if row.ApplicationType != nil {
			s := string(*row.ApplicationType)
			appType = &s
		}
		resp[i] = schoolDashboardResponse{
			EntryID:         row.EntryID,
			SchoolID:        row.SchoolID,
			SchoolName:      row.SchoolName,
			ListID:          row.ListID,
			ListName:        row.ListName,
			DeadlineID:      row.DeadlineID,
			ApplicationType: appType,
			DeadlineDate:    row.DeadlineDate,
			SupplementCount: row.SupplementCount,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func toListResponse(l *model.List) listResponse {
	return listResponse{ID: l.ID, Name: l.Name, CreatedAt: l.CreatedAt}
}
