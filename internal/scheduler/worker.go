package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"tyomaat-portal/internal/database"
	"tyomaat-portal/internal/geocode"
	"tyomaat-portal/internal/models"
)

// GeocodeQueueStore is the queue persistence the worker needs
type GeocodeQueueStore interface {
	NextGeocodeItems(ctx context.Context, now time.Time, limit int) ([]models.GeocodeQueue, error)
	SaveGeocodeItem(ctx context.Context, item *models.GeocodeQueue) error
	SetProjectCoordinates(ctx context.Context, id string, lat, lng float64) error
	GeocodeQueueStats(ctx context.Context) (map[string]int64, error)
}

// QueueWorker retries geocoding of projects saved without coordinates
type QueueWorker struct {
	store        GeocodeQueueStore
	geocoder     geocode.Geocoder
	onResolved   func(projectID string)
	stopChan     chan struct{}
	mu           sync.Mutex
	isRunning    bool
	pollInterval time.Duration
	batchSize    int
	openDelay    time.Duration
	now          func() time.Time
}

// NewQueueWorker creates a new queue worker. onResolved is called after a
// project receives coordinates and may be nil.
func NewQueueWorker(store GeocodeQueueStore, g geocode.Geocoder, pollInterval time.Duration, batchSize int, onResolved func(projectID string)) *QueueWorker {
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 5
	}
	return &QueueWorker{
		store:        store,
		geocoder:     g,
		onResolved:   onResolved,
		stopChan:     make(chan struct{}),
		pollInterval: pollInterval,
		batchSize:    batchSize,
		openDelay:    5 * time.Minute,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Start starts the queue worker
func (w *QueueWorker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isRunning {
		log.Println("QueueWorker: Already running")
		return
	}
	w.isRunning = true
	log.Printf("QueueWorker: Started (poll_interval=%v, batch_size=%d)", w.pollInterval, w.batchSize)

	go w.run()
}

// Stop stops the queue worker
func (w *QueueWorker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.isRunning {
		return
	}

	log.Println("QueueWorker: Stopping...")
	w.isRunning = false
	close(w.stopChan)
}

// run is the main worker loop
func (w *QueueWorker) run() {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			log.Println("QueueWorker: Stopped")
			return
		case <-ticker.C:
			w.ProcessNextBatch(context.Background())
		}
	}
}

// ProcessNextBatch handles up to batchSize due queue rows and returns how many were processed
func (w *QueueWorker) ProcessNextBatch(ctx context.Context) int {
	items, err := w.store.NextGeocodeItems(ctx, w.now(), w.batchSize)
	if err != nil {
		log.Printf("QueueWorker: Error fetching queue items: %v", err)
		return 0
	}

	for i := range items {
		select {
		case <-w.stopChan:
			return i
		default:
		}
		if stop := w.processQueueItem(ctx, &items[i]); stop {
			return i + 1
		}
	}
	return len(items)
}

// processQueueItem geocodes one row. It returns true when the rest of the batch
// should wait, which happens while the geocoder's circuit is open.
func (w *QueueWorker) processQueueItem(ctx context.Context, item *models.GeocodeQueue) bool {
	log.Printf("QueueWorker: Processing id=%d project=%s attempt=%d", item.ID, item.ProjectID, item.Attempts+1)

	item.Status = models.QueueStatusProcessing
	item.Attempts++
	if err := w.store.SaveGeocodeItem(ctx, item); err != nil {
		log.Printf("QueueWorker: Failed to update status to processing: %v", err)
		return false
	}

	pt, err := w.geocoder.Geocode(ctx, item.Address)
	if err != nil {
		return w.handleGeocodeError(ctx, item, err)
	}

	if err := w.store.SetProjectCoordinates(ctx, item.ProjectID, pt.Lat, pt.Lng); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			w.finish(ctx, item, models.QueueStatusPermanentFail, "project no longer exists")
			return false
		}
		w.handleGeocodeError(ctx, item, fmt.Errorf("database save error: %w", err))
		return false
	}

	w.finish(ctx, item, models.QueueStatusDone, "")
	log.Printf("QueueWorker: Completed id=%d project=%s (%.5f, %.5f)", item.ID, item.ProjectID, pt.Lat, pt.Lng)
	if w.onResolved != nil {
		w.onResolved(item.ProjectID)
	}
	return false
}

func (w *QueueWorker) handleGeocodeError(ctx context.Context, item *models.GeocodeQueue, err error) bool {
	log.Printf("QueueWorker: Geocode failed for id=%d: %v", item.ID, err)

	switch {
	case errors.Is(err, geocode.ErrNoResult):
		// the address has no match; retrying the same text will not help
		w.finish(ctx, item, models.QueueStatusPermanentFail, err.Error())
		return false

	case errors.Is(err, geocode.ErrCircuitOpen):
		// not counted as an attempt
		item.Attempts--
		item.Status = models.QueueStatusFailed
		item.LastError = err.Error()
		next := w.now().Add(w.openDelay)
		item.NextRetryAt = &next
		if err := w.store.SaveGeocodeItem(ctx, item); err != nil {
			log.Printf("QueueWorker: Failed to save circuit cooldown: %v", err)
		}
		return true
	}

	if item.Attempts >= models.MaxRetryAttempts {
		log.Printf("QueueWorker: Max retries exceeded for id=%d (%d attempts)", item.ID, item.Attempts)
		w.finish(ctx, item, models.QueueStatusFailed, fmt.Sprintf("max retries exceeded (%d): %v", item.Attempts, err))
		return false
	}

	delay := models.GetNextRetryDelay(item.Attempts - 1)
	next := w.now().Add(delay)
	item.Status = models.QueueStatusFailed
	item.LastError = err.Error()
	item.NextRetryAt = &next
	log.Printf("QueueWorker: Scheduling retry for id=%d in %v (attempt %d/%d)",
		item.ID, delay, item.Attempts, models.MaxRetryAttempts)

	if err := w.store.SaveGeocodeItem(ctx, item); err != nil {
		log.Printf("QueueWorker: Failed to save retry status: %v", err)
	}
	return false
}

func (w *QueueWorker) finish(ctx context.Context, item *models.GeocodeQueue, status, lastErr string) {
	completed := w.now()
	item.Status = status
	item.LastError = lastErr
	item.CompletedAt = &completed
	item.NextRetryAt = nil
	if err := w.store.SaveGeocodeItem(ctx, item); err != nil {
		log.Printf("QueueWorker: Failed to save %s status: %v", status, err)
	}
}

// GetQueueStats returns current queue statistics
func (w *QueueWorker) GetQueueStats(ctx context.Context) map[string]interface{} {
	stats := map[string]interface{}{}
	counts, err := w.store.GeocodeQueueStats(ctx)
	if err != nil {
		log.Printf("QueueWorker: Failed to read queue stats: %v", err)
	}
	for k, v := range counts {
		stats[k] = v
	}
	w.mu.Lock()
	stats["is_running"] = w.isRunning
	w.mu.Unlock()
	return stats
}
