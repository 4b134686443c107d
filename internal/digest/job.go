package digest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tyomaat-portal/internal/mail"
	"tyomaat-portal/internal/models"
)

// Store is the persistence the job needs
type Store interface {
	ListEnabledWatches(ctx context.Context) ([]models.Watch, error)
	FindNewProjects(ctx context.Context, f models.WatchFilters, since time.Time) ([]models.Project, error)
	MarkWatchSent(ctx context.Context, id string, at time.Time) error
}

// Directory resolves a user id to an email address
type Directory interface {
	Email(ctx context.Context, uid string) (string, error)
}

// Result summarizes one run
type Result struct {
	Checked   int        `json:"checked"`
	Sent      int        `json:"sent"`
	DebugRows []DebugRow `json:"debugRows,omitempty"`
}

// DebugRow describes the evaluation of one watch in debug mode
type DebugRow struct {
	WatchID    string     `json:"watch_id"`
	UserID     string     `json:"user_id"`
	Name       string     `json:"name"`
	Frequency  string     `json:"frequency"`
	LastSentAt *time.Time `json:"last_sent_at"`
	Due        bool       `json:"due"`
	Since      *time.Time `json:"since,omitempty"`
	Matches    int        `json:"matches"`
	Error      string     `json:"error,omitempty"`
}

// Job evaluates every enabled watch and emails new matches
type Job struct {
	store    Store
	dir      Directory
	sender   mail.Sender
	baseURL  string
	maxItems int
	now      func() time.Time
	logger   *slog.Logger
}

// Config holds the job settings
type Config struct {
	AppBaseURL string
	MaxItems   int
}

func NewJob(store Store, dir Directory, sender mail.Sender, cfg Config) *Job {
	return &Job{
		store:    store,
		dir:      dir,
		sender:   sender,
		baseURL:  cfg.AppBaseURL,
		maxItems: cfg.MaxItems,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   slog.Default().With("component", "digest"),
	}
}

// Run processes the watches one at a time. In debug mode the due check and the
// query run as usual but no email is sent and no timestamp changes.
// Only a failure to load the watches fails the run.
func (j *Job) Run(ctx context.Context, debug bool) (*Result, error) {
	watches, err := j.store.ListEnabledWatches(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled watches: %w", err)
	}

	res := &Result{}
	if debug {
		res.DebugRows = make([]DebugRow, 0, len(watches))
	}

	for i := range watches {
		w := &watches[i]
		res.Checked++

		row, sent := j.process(ctx, w, debug)
		if sent {
			res.Sent++
		}
		if debug {
			res.DebugRows = append(res.DebugRows, row)
		}
	}

	j.logger.Info("digest run finished", "checked", res.Checked, "sent", res.Sent, "debug", debug)
	return res, nil
}

func (j *Job) process(ctx context.Context, w *models.Watch, debug bool) (DebugRow, bool) {
	now := j.now()
	row := DebugRow{
		WatchID:    w.ID,
		UserID:     w.UserID,
		Name:       w.Name,
		Frequency:  string(w.Frequency),
		LastSentAt: w.LastSentAt,
	}
	logger := j.logger.With("watch_id", w.ID, "user_id", w.UserID)

	row.Due = IsDue(w, now)
	if !row.Due {
		logger.Debug("watch not due")
		return row, false
	}

	since := Window(w, now)
	row.Since = &since

	projects, err := j.store.FindNewProjects(ctx, w.Filters, since)
	if err != nil {
		row.Error = err.Error()
		logger.Error("query failed", "error", err)
		return row, false
	}
	row.Matches = len(projects)

	if debug {
		return row, false
	}

	if len(projects) == 0 {
		if err := j.store.MarkWatchSent(ctx, w.ID, now); err != nil {
			row.Error = err.Error()
			logger.Error("failed to advance last_sent_at", "error", err)
		}
		return row, false
	}

	email, err := j.dir.Email(ctx, w.UserID)
	if err != nil || email == "" {
		row.Error = fmt.Sprintf("no email for user: %v", err)
		logger.Warn("skipping watch, owner email unavailable", "error", err)
		return row, false
	}

	msg := Compose(w, projects, j.baseURL, j.maxItems)
	msg.To = email
	if err := j.sender.Send(ctx, msg); err != nil {
		row.Error = err.Error()
		logger.Error("send failed", "error", err, "matches", len(projects))
		return row, false
	}

	if err := j.store.MarkWatchSent(ctx, w.ID, now); err != nil {
		// the email went out; the next run may repeat this window
		row.Error = err.Error()
		logger.Error("failed to advance last_sent_at after send", "error", err)
	}
	logger.Info("digest sent", "matches", len(projects))
	return row, true
}
