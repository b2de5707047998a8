package maintenance

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"vidtube-serverless/internal/httpx"
	"vidtube-serverless/internal/observability"
)

// SessionStore clears refresh tokens whose expiry has passed.
type SessionStore interface {
	ClearExpiredRefreshTokens(ctx context.Context, now time.Time, batchSize int) (int64, error)
}

// StagedFiles removes upload leftovers that outlived their request.
type StagedFiles interface {
	PurgeOlderThan(cutoff time.Time) (int, error)
}

type CleanupResult struct {
	ClearedRefreshTokens int64 `json:"clearedRefreshTokens"`
	PurgedStagedFiles    int   `json:"purgedStagedFiles"`
}

type CleanupHandler struct {
	sessions        SessionStore
	staged          StagedFiles
	logger          *observability.Logger
	cronSecret      string
	stagedRetention time.Duration
	batchSize       int
	clock           clockwork.Clock
}

func NewCleanupHandler(
	sessions SessionStore,
	staged StagedFiles,
	logger *observability.Logger,
	cronSecret string,
	stagedRetention time.Duration,
	batchSize int,
	clock clockwork.Clock,
) *CleanupHandler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CleanupHandler{
		sessions:        sessions,
		staged:          staged,
		logger:          logger,
		cronSecret:      strings.TrimSpace(cronSecret),
		stagedRetention: stagedRetention,
		batchSize:       batchSize,
		clock:           clock,
	}
}

// Handle runs one cleanup pass. It is hidden entirely when no cron secret is configured.
func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) error {
	if h.cronSecret == "" {
		return httpx.NotFound("not found")
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, _ := strings.Cut(authHeader, " ")
	if !strings.EqualFold(scheme, "Bearer") ||
		subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(h.cronSecret)) != 1 {
		return httpx.Unauthorized("unauthorized")
	}

	now := h.clock.Now().UTC()
	var result CleanupResult

	cleared, err := h.sessions.ClearExpiredRefreshTokens(r.Context(), now, h.batchSize)
	if err != nil {
		h.logger.Error("session_cleanup_failed", map[string]any{"error": err.Error()})
		return httpx.Internal("cleanup failed", err)
	}
	result.ClearedRefreshTokens = cleared

	if h.staged != nil && h.stagedRetention > 0 {
		purged, err := h.staged.PurgeOlderThan(now.Add(-h.stagedRetention))
		if err != nil {
			h.logger.Error("staged_file_cleanup_failed", map[string]any{"error": err.Error()})
			return httpx.Internal("cleanup failed", err)
		}
		result.PurgedStagedFiles = purged
	}

	h.logger.Info("cleanup_completed", map[string]any{
		"cleared_refresh_tokens": result.ClearedRefreshTokens,
		"purged_staged_files":    result.PurgedStagedFiles,
	})

	httpx.Respond(w, http.StatusOK, result, "cleanup completed")
	return nil
}
