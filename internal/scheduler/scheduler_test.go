package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tyomaat-portal/internal/cleanup"
	"tyomaat-portal/internal/config"
	"tyomaat-portal/internal/database"
	"tyomaat-portal/internal/digest"
	"tyomaat-portal/internal/geocode"
	"tyomaat-portal/internal/models"
)

func newTestStore(t *testing.T) *database.GormDB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	gdb := database.NewGormDBFromDB(db)
	require.NoError(t, gdb.InitSchema())
	return gdb
}

type scriptedGeocoder struct {
	results map[string]geocode.Point
	errs    map[string]error
	calls   []string
}

func (g *scriptedGeocoder) Geocode(_ context.Context, address string) (geocode.Point, error) {
	g.calls = append(g.calls, address)
	if err, ok := g.errs[address]; ok {
		return geocode.Point{}, err
	}
	if pt, ok := g.results[address]; ok {
		return pt, nil
	}
	return geocode.Point{}, geocode.ErrNoResult
}

func seedQueued(t *testing.T, gdb *database.GormDB, name, address string) string {
	t.Helper()
	ctx := context.Background()
	p := &models.Project{Name: name, Location: address, City: "Espoo", Phase: models.PhasePlanning, IsPublic: true}
	require.NoError(t, gdb.CreateProject(ctx, p))
	require.NoError(t, gdb.EnqueueGeocode(ctx, p.ID, address, "initial failure", false))
	return p.ID
}

func TestQueueWorker_ResolvesCoordinates(t *testing.T) {
	gdb := newTestStore(t)
	ctx := context.Background()
	id := seedQueued(t, gdb, "Tapiola", "Tapiontori 1, Espoo")

	g := &scriptedGeocoder{results: map[string]geocode.Point{"Tapiontori 1, Espoo": {Lat: 60.1756, Lng: 24.8052}}}
	var resolved []string
	w := NewQueueWorker(gdb, g, time.Second, 5, func(pid string) { resolved = append(resolved, pid) })

	assert.Equal(t, 1, w.ProcessNextBatch(ctx))

	p, err := gdb.GetProject(ctx, id)
	require.NoError(t, err)
	lat, _, ok := p.Coordinates()
	require.True(t, ok)
	assert.InDelta(t, 60.1756, lat, 1e-6)
	assert.Equal(t, []string{id}, resolved)

	item, err := gdb.GetGeocodeItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusDone, item.Status)
	assert.Equal(t, 1, item.Attempts)

	assert.Equal(t, 0, w.ProcessNextBatch(ctx), "done rows are not picked again")
}

func TestQueueWorker_NoResultIsPermanent(t *testing.T) {
	gdb := newTestStore(t)
	ctx := context.Background()
	id := seedQueued(t, gdb, "Unknown", "Olematon 99")

	w := NewQueueWorker(gdb, &scriptedGeocoder{}, time.Second, 5, nil)
	w.ProcessNextBatch(ctx)

	item, err := gdb.GetGeocodeItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusPermanentFail, item.Status)
	assert.Nil(t, item.NextRetryAt)
	assert.NotNil(t, item.CompletedAt)
}

func TestQueueWorker_BackoffAndMaxAttempts(t *testing.T) {
	gdb := newTestStore(t)
	ctx := context.Background()
	id := seedQueued(t, gdb, "Flaky", "Kivikatu 1")

	g := &scriptedGeocoder{errs: map[string]error{"Kivikatu 1": errors.New("geocode: upstream status 503")}}
	w := NewQueueWorker(gdb, g, time.Second, 5, nil)
	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return clock }

	expected := []time.Duration{5 * time.Minute, 15 * time.Minute, time.Hour, 4 * time.Hour}
	for i, delay := range expected {
		require.Equal(t, 1, w.ProcessNextBatch(ctx), "attempt %d", i+1)
		item, err := gdb.GetGeocodeItem(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.QueueStatusFailed, item.Status)
		require.NotNil(t, item.NextRetryAt)
		assert.True(t, item.NextRetryAt.Equal(clock.Add(delay)), "attempt %d retry at %v", i+1, item.NextRetryAt)

		assert.Equal(t, 0, w.ProcessNextBatch(ctx), "not due before the retry time")
		clock = clock.Add(delay)
	}

	require.Equal(t, 1, w.ProcessNextBatch(ctx))
	item, err := gdb.GetGeocodeItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.MaxRetryAttempts, item.Attempts)
	assert.Equal(t, models.QueueStatusFailed, item.Status)
	assert.Nil(t, item.NextRetryAt)
	assert.Contains(t, item.LastError, "max retries exceeded")

	clock = clock.Add(24 * time.Hour)
	assert.Equal(t, 0, w.ProcessNextBatch(ctx))
}

func TestQueueWorker_CircuitOpenPausesBatch(t *testing.T) {
	gdb := newTestStore(t)
	ctx := context.Background()
	first := seedQueued(t, gdb, "A", "Osoite 1")
	seedQueued(t, gdb, "B", "Osoite 2")

	g := &scriptedGeocoder{errs: map[string]error{
		"Osoite 1": geocode.ErrCircuitOpen,
		"Osoite 2": geocode.ErrCircuitOpen,
	}}
	w := NewQueueWorker(gdb, g, time.Second, 5, nil)

	assert.Equal(t, 1, w.ProcessNextBatch(ctx))
	assert.Len(t, g.calls, 1)

	item, err := gdb.GetGeocodeItem(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, 0, item.Attempts, "open circuit is not an attempt")
	assert.Equal(t, models.QueueStatusFailed, item.Status)
	require.NotNil(t, item.NextRetryAt)
}

func TestQueueWorker_StartStop(t *testing.T) {
	gdb := newTestStore(t)
	w := NewQueueWorker(gdb, &scriptedGeocoder{}, 10*time.Millisecond, 1, nil)

	w.Start()
	w.Start()
	stats := w.GetQueueStats(context.Background())
	assert.Equal(t, true, stats["is_running"])

	w.Stop()
	w.Stop()
	stats = w.GetQueueStats(context.Background())
	assert.Equal(t, false, stats["is_running"])
	assert.Equal(t, int64(0), stats[models.QueueStatusPending])
}

type countingDigest struct{ runs int }

func (c *countingDigest) Run(context.Context, bool) (*digest.Result, error) {
	c.runs++
	return &digest.Result{Checked: 2, Sent: 1}, nil
}

type countingCleaner struct{ last cleanup.CleanupConfig }

func (c *countingCleaner) PhysicallyDelete(_ context.Context, cfg cleanup.CleanupConfig) (*cleanup.CleanupResult, error) {
	c.last = cfg
	return &cleanup.CleanupResult{DryRun: cfg.DryRun}, nil
}

func TestScheduler_StartAndManualRuns(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Digest.CronEnabled = true
	d := &countingDigest{}
	c := &countingCleaner{}

	s := NewScheduler(cfg, d, c)
	require.NoError(t, s.Start())
	assert.Len(t, s.Entries(), 2)
	defer s.Stop()

	res, err := s.RunDigestNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, 1, d.runs)

	cres, err := s.RunCleanupNow(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, cres.DryRun)
	assert.Equal(t, cfg.Cleanup.RetentionDays, c.last.RetentionDays)
}

func TestScheduler_InvalidCron(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Digest.CronEnabled = true
	cfg.Digest.Cron = "every morning"

	err := NewScheduler(cfg, &countingDigest{}, nil).Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid digest cron")
}

func TestScheduler_NothingConfigured(t *testing.T) {
	s := NewScheduler(config.DefaultConfig(), nil, nil)
	require.NoError(t, s.Start())
	s.Stop()

	_, err := s.RunDigestNow(context.Background())
	assert.Error(t, err)
	_, err = s.RunCleanupNow(context.Background(), false)
	assert.Error(t, err)
}
