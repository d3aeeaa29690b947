// Package apiclient はcollegetrack APIのGoクライアントを提供する。
// リスト割り当ての変更はローカルキャッシュへ先に反映し、失敗時はキャッシュを無効化する。
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

// Error はAPIが返したエラーレスポンス。
type Error struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
	Category   string `json:"category"`
	Action     string `json:"action"`
	RequestID  string `json:"request_id,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("api error %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Client は1ユーザー分のAPIクライアント。セッショントークンをBearerで送る。
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	cache      *assignmentCache
}

// NewClient はClientを生成する。httpClientがnilならhttp.DefaultClientを使う。
func NewClient(httpClient *http.Client, baseURL, token string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		cache:      newAssignmentCache(),
	}
}

// Assignment はキャッシュ上の学校の割り当てを返す。
// キャッシュが無効な場合や未割り当ての場合はfalseを返す。
func (c *Client) Assignment(schoolID int64) (Assignment, bool) {
	return c.cache.get(schoolID)
}

// CacheValid はキャッシュが有効かを返す。
func (c *Client) CacheValid() bool {
	return c.cache.isValid()
}

// Lists はリストと割り当て済みの学校を取得し、キャッシュを置き換える。
func (c *Client) Lists(ctx context.Context) ([]ListWithSchools, error) {
	var lists []ListWithSchools
	if err := c.do(ctx, http.MethodGet, "/api/lists", nil, &lists); err != nil {
		return nil, err
	}
	c.cache.replace(lists)
	return lists, nil
}

// CreateList はリストを作成する。
func (c *Client) CreateList(ctx context.Context, name string) (*List, error) {
	var list List
	if err := c.do(ctx, http.MethodPost, "/api/lists", map[string]string{"name": name}, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// AssignSchool は学校をリストに割り当てる。
// 既存のリストへの割り当てはキャッシュに先に反映する。失敗した場合はキャッシュを無効化する。
func (c *Client) AssignSchool(ctx context.Context, req AssignRequest) (*AssignResponse, error) {
	return Run(ctx, Mutation[*AssignResponse]{
		Apply: func() {
			if req.ListID == nil {
				// 新規リストのIDはサーバー応答まで分からない
				return
			}
			prev, _ := c.cache.get(req.SchoolID)
			c.cache.set(req.SchoolID, Assignment{
				EntryID:    prev.EntryID,
				ListID:     *req.ListID,
				DeadlineID: req.DeadlineID,
				Pending:    true,
			})
		},
		Call: func(ctx context.Context) (*AssignResponse, error) {
			var resp AssignResponse
			if err := c.do(ctx, http.MethodPut, "/api/list-entries", req, &resp); err != nil {
				return nil, err
			}
			c.cache.set(resp.Entry.SchoolID, Assignment{
				EntryID:    resp.Entry.ID,
				ListID:     resp.Entry.ListID,
				DeadlineID: resp.Entry.DeadlineID,
			})
			return &resp, nil
		},
		Rollback: func(err error) {
			slog.Warn("list assignment failed; invalidating cache",
				slog.Int64("school_id", req.SchoolID),
				slog.String("error", err.Error()),
			)
			c.cache.invalidate()
		},
	})
}

// RemoveEntry は割り当てを削除する。キャッシュからは先に取り除く。
func (c *Client) RemoveEntry(ctx context.Context, entryID int64) error {
	_, err := Run(ctx, Mutation[struct{}]{
		Apply: func() { c.cache.removeEntry(entryID) },
		Call: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.do(ctx, http.MethodDelete, "/api/list-entries/"+strconv.FormatInt(entryID, 10), nil, nil)
		},
		Rollback: func(err error) {
			slog.Warn("list entry removal failed; invalidating cache",
				slog.Int64("entry_id", entryID),
				slog.String("error", err.Error()),
			)
			c.cache.invalidate()
		},
	})
	return err
}

// UpsertEvent はカレンダーイベントを作成または上書きする。
func (c *Client) UpsertEvent(ctx context.Context, req UpsertEventRequest) (*UpsertEventResponse, error) {
	var resp UpsertEventResponse
	if err := c.do(ctx, http.MethodPost, "/api/calendar-events", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateSchedule はイベントの日時・ステータスを部分更新する。
func (c *Client) UpdateSchedule(ctx context.Context, eventID int64, patch SchedulePatch) error {
	return c.do(ctx, http.MethodPatch, "/api/calendar-events/"+strconv.FormatInt(eventID, 10), patch, nil)
}

// CalendarEvents はリスト別のイベント一覧を取得する。
func (c *Client) CalendarEvents(ctx context.Context) ([]ListEvents, error) {
	var groups []ListEvents
	if err := c.do(ctx, http.MethodGet, "/api/calendar-events", nil, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// CreateGoogleEvent は外部カレンダーにイベントを作成する。
func (c *Client) CreateGoogleEvent(ctx context.Context, req CreateRemoteEventRequest) (*SyncResult, error) {
	var result SyncResult
	if err := c.do(ctx, http.MethodPost, "/api/calendar/google/events", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// do はJSONリクエストを送り、2xxならoutへデコードする。outがnilならボディを読み捨てる。
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &Error{StatusCode: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
