package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/collegetrack/internal/model"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate       rate.Limit    // API全般のレート（req/sec）
	GeneralBurst      int           // API全般のバーストサイズ
	CalendarSyncRate  rate.Limit    // Googleカレンダー同期のレート（req/sec）
	CalendarSyncBurst int           // Googleカレンダー同期のバーストサイズ
	CleanupInterval   time.Duration // 期限切れエントリのクリーンアップ間隔
}

// RateLimiterConfigPerMinute は1分あたりのリクエスト数から設定を作る。
// バーストは1分ぶんの上限と同じにする。
func RateLimiterConfigPerMinute(general, calendarSync int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:       rate.Limit(float64(general) / 60.0),
		GeneralBurst:      general,
		CalendarSyncRate:  rate.Limit(float64(calendarSync) / 60.0),
		CalendarSyncBurst: calendarSync,
		CleanupInterval:   5 * time.Minute,
	}
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// API全般 120 req/min/user、カレンダー同期 20 req/min/user。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfigPerMinute(120, 20)
}

// userLimiter はユーザーごとのレートリミッターとアクセス時刻を保持する。
type userLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterSet は1種類の制限についてユーザーごとのリミッターを管理する。
type limiterSet struct {
	name  string
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[int64]*userLimiter
}

func newLimiterSet(name string, limit rate.Limit, burst int) *limiterSet {
	return &limiterSet{
		name:     name,
		limit:    limit,
		burst:    burst,
		limiters: make(map[int64]*userLimiter),
	}
}

func (s *limiterSet) get(userID int64, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ul, ok := s.limiters[userID]; ok {
		ul.lastAccess = now
		return ul.limiter
	}
	limiter := rate.NewLimiter(s.limit, s.burst)
	s.limiters[userID] = &userLimiter{limiter: limiter, lastAccess: now}
	return limiter
}

func (s *limiterSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

func (s *limiterSet) evict(before time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID, ul := range s.limiters {
		if ul.lastAccess.Before(before) {
			delete(s.limiters, userID)
		}
	}
}

// middleware は認証済みユーザー単位で制限するミドルウェアを返す。
func (s *limiterSet) middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := UserIDFromContext(r.Context())
			if err != nil {
				WriteUnauthorized(w)
				return
			}

			if !s.get(userID, time.Now()).Allow() {
				writeRateLimitResponse(w, s.limit)
				slog.Warn("rate limit exceeded",
					slog.Int64("user_id", userID),
					slog.String("limit_type", s.name),
					slog.String("request_id", RequestIDFromContext(r.Context())),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimiter はユーザーごとのレート制限を管理する。
// API全般とGoogleカレンダー同期の2種類を独立に提供する。
type RateLimiter struct {
	config       RateLimiterConfig
	general      *limiterSet
	calendarSync *limiterSet
	stopCh       chan struct{}
	stopOnce     sync.Once
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:       config,
		general:      newLimiterSet("general", config.GeneralRate, config.GeneralBurst),
		calendarSync: newLimiterSet("calendar_sync", config.CalendarSyncRate, config.CalendarSyncBurst),
		stopCh:       make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
// 認証ミドルウェアの後に配置する。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.general.middleware()
}

// CalendarSyncMiddleware はGoogleカレンダーへのイベント作成専用のレート制限ミドルウェアを返す。
func (rl *RateLimiter) CalendarSyncMiddleware() func(next http.Handler) http.Handler {
	return rl.calendarSync.middleware()
}

// GeneralLimiterCount は管理中のAPI全般リミッター数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int {
	return rl.general.len()
}

// CalendarSyncLimiterCount は管理中のカレンダー同期リミッター数を返す。
func (rl *RateLimiter) CalendarSyncLimiterCount() int {
	return rl.calendarSync.len()
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセスからCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup(now time.Time) {
	before := now.Add(-2 * rl.config.CleanupInterval)
	rl.general.evict(before)
	rl.calendarSync.evict(before)
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが1つ補充されるまでの秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfterSec := 1
	if r > 0 {
		retryAfterSec = int(math.Ceil(1.0 / float64(r)))
	}
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, &model.APIError{
		Code:     "RATE_LIMIT_EXCEEDED",
		Message:  "リクエストが多すぎます。",
		Category: model.CategorySystem,
		Action:   "Retry-Afterヘッダーの秒数だけ待ってから再度お試しください。",
	})
}
