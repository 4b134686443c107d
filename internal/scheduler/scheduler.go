package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"tyomaat-portal/internal/cleanup"
	"tyomaat-portal/internal/config"
	"tyomaat-portal/internal/digest"

	"github.com/robfig/cron/v3"
)

// DigestRunner runs the saved-search digest job
type DigestRunner interface {
	Run(ctx context.Context, debug bool) (*digest.Result, error)
}

// Cleaner purges expired soft-deleted projects
type Cleaner interface {
	PhysicallyDelete(ctx context.Context, config cleanup.CleanupConfig) (*cleanup.CleanupResult, error)
}

// Scheduler runs the periodic digest and cleanup jobs
type Scheduler struct {
	cron      *cron.Cron
	digest    DigestRunner
	cleaner   Cleaner
	config    *config.Config
	timeout   time.Duration
	mu        sync.Mutex
	running   map[string]bool
	isRunning bool
}

// NewScheduler creates a new scheduler. Either job may be nil.
func NewScheduler(cfg *config.Config, digestJob DigestRunner, cleaner Cleaner) *Scheduler {
	loc := time.UTC
	if cfg.Timezone != "" {
		if l, err := time.LoadLocation(cfg.Timezone); err == nil {
			loc = l
		} else {
			log.Printf("Scheduler: Unknown timezone %q, using UTC", cfg.Timezone)
		}
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		digest:  digestJob,
		cleaner: cleaner,
		config:  cfg,
		timeout: 30 * time.Minute,
		running: map[string]bool{},
	}
}

// Start registers the enabled jobs and starts the cron loop
func (s *Scheduler) Start() error {
	jobs := 0

	if s.config.Digest.CronEnabled && s.digest != nil {
		if _, err := s.cron.AddFunc(s.config.Digest.Cron, func() { s.runGuarded("digest", s.runDigest) }); err != nil {
			return fmt.Errorf("invalid digest cron %q: %w", s.config.Digest.Cron, err)
		}
		log.Printf("Scheduler: Digest job scheduled (cron: %s)", s.config.Digest.Cron)
		jobs++
	} else {
		log.Println("Scheduler: Digest job is disabled in configuration")
	}

	if s.config.Cleanup.Enabled && s.cleaner != nil {
		if _, err := s.cron.AddFunc(s.config.Cleanup.Cron, func() { s.runGuarded("cleanup", s.runCleanup) }); err != nil {
			return fmt.Errorf("invalid cleanup cron %q: %w", s.config.Cleanup.Cron, err)
		}
		log.Printf("Scheduler: Cleanup job scheduled (cron: %s, retention: %d days)",
			s.config.Cleanup.Cron, s.config.Cleanup.RetentionDays)
		jobs++
	} else {
		log.Println("Scheduler: Cleanup job is disabled in configuration")
	}

	if jobs == 0 {
		return nil
	}

	s.cron.Start()
	s.isRunning = true
	log.Printf("Scheduler: Started with %d jobs", jobs)
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	if s.isRunning {
		<-s.cron.Stop().Done()
		s.isRunning = false
		log.Println("Scheduler: Stopped")
	}
}

// runGuarded skips a run while the previous run of the same job is still going
func (s *Scheduler) runGuarded(name string, fn func(ctx context.Context) error) {
	s.mu.Lock()
	if s.running[name] {
		s.mu.Unlock()
		log.Printf("Scheduler: %s job still running, skipping this tick", name)
		return
	}
	s.running[name] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running[name] = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	log.Printf("Scheduler: Starting %s job...", name)
	if err := fn(ctx); err != nil {
		log.Printf("Scheduler: %s job failed: %v", name, err)
		return
	}
	log.Printf("Scheduler: %s job completed successfully", name)
}

func (s *Scheduler) runDigest(ctx context.Context) error {
	res, err := s.digest.Run(ctx, false)
	if err != nil {
		return err
	}
	log.Printf("Scheduler: Digest checked=%d sent=%d", res.Checked, res.Sent)
	return nil
}

func (s *Scheduler) runCleanup(ctx context.Context) error {
	_, err := s.cleaner.PhysicallyDelete(ctx, cleanup.CleanupConfig{
		RetentionDays:    s.config.Cleanup.RetentionDays,
		MaxDeletionCount: s.config.Cleanup.MaxDeletionCount,
	})
	return err
}

// RunDigestNow immediately executes the digest job (for manual trigger)
func (s *Scheduler) RunDigestNow(ctx context.Context) (*digest.Result, error) {
	if s.digest == nil {
		return nil, fmt.Errorf("digest job is not configured")
	}
	log.Println("Scheduler: Manual trigger - starting digest job...")
	return s.digest.Run(ctx, false)
}

// RunCleanupNow immediately executes the cleanup job (for manual trigger)
func (s *Scheduler) RunCleanupNow(ctx context.Context, dryRun bool) (*cleanup.CleanupResult, error) {
	if s.cleaner == nil {
		return nil, fmt.Errorf("cleanup is not configured")
	}
	log.Printf("Scheduler: Manual trigger - starting cleanup (dry-run: %v)...", dryRun)
	return s.cleaner.PhysicallyDelete(ctx, cleanup.CleanupConfig{
		RetentionDays:    s.config.Cleanup.RetentionDays,
		MaxDeletionCount: s.config.Cleanup.MaxDeletionCount,
		DryRun:           dryRun,
	})
}

// Entries reports the scheduled jobs for the dashboard
func (s *Scheduler) Entries() []map[string]interface{} {
	out := []map[string]interface{}{}
	for _, e := range s.cron.Entries() {
		out = append(out, map[string]interface{}{
			"id":   e.ID,
			"next": e.Next,
			"prev": e.Prev,
		})
	}
	return out
}
