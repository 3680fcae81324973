package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/dotcommander/pagekit/internal/models"
	"github.com/dotcommander/pagekit/pkg/page"
)

// Recorder journals every render of the pages it observes. Register it with
// page.WithRenderObserver(rec.Observe).
type Recorder struct {
	db       *sql.DB
	pageName string
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]bool
	failures int
}

// NewRecorder returns a Recorder writing to db under pageName.
func NewRecorder(db *sql.DB, pageName string, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		db:       db,
		pageName: pageName,
		logger:   logger,
		sessions: make(map[string]bool),
	}
}

// Observe writes one render. It runs on the page's render path, so failures
// are logged and counted instead of returned.
func (r *Recorder) Observe(info page.RenderInfo) {
	ctx := context.Background()

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.sessions[info.PageID] {
		if err := CreateSession(ctx, r.db, info.PageID, r.pageName); err != nil {
			r.fail("create journal session", info, err)
			return
		}
		r.sessions[info.PageID] = true
	}

	snapshot, err := json.Marshal(info.Results)
	if err != nil {
		r.logger.Warn("render snapshot not serialisable", "page", info.PageID, "seq", info.Seq, "error", err)
		snapshot, _ = json.Marshal(map[string]string{"error": err.Error()})
	}

	if _, err := AppendRender(ctx, r.db, models.Render{
		SessionID: info.PageID,
		Seq:       info.Seq,
		Trigger:   string(info.Trigger),
		Command:   info.Command,
		InFlight:  info.InFlight,
		Snapshot:  snapshot,
	}); err != nil {
		r.fail("append render", info, err)
	}
}

// Failures returns how many renders could not be journaled.
func (r *Recorder) Failures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures
}

func (r *Recorder) fail(msg string, info page.RenderInfo, err error) {
	r.failures++
	r.logger.Error(msg, "page", info.PageID, "seq", info.Seq, "error", err)
}
