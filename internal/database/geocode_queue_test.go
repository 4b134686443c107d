package database

import (
	"context"
	"testing"
	"time"

	"tyomaat-portal/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormDB_GeocodeQueue(t *testing.T) {
	gdb := newTestGormDB(t)
	ctx := context.Background()

	require.NoError(t, gdb.EnqueueGeocode(ctx, "p1", "Kivikatu 1, Espoo", "geocode: circuit open", false))
	require.NoError(t, gdb.EnqueueGeocode(ctx, "p2", "Nowhere 0", "geocode: no result", true))

	items, err := gdb.NextGeocodeItems(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "p1", items[0].ProjectID)

	// a failed row becomes eligible once its retry time has passed
	item := items[0]
	retry := time.Now().UTC().Add(time.Hour)
	item.Status = models.QueueStatusFailed
	item.Attempts = 2
	item.NextRetryAt = &retry
	require.NoError(t, gdb.SaveGeocodeItem(ctx, &item))

	items, err = gdb.NextGeocodeItems(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	assert.Empty(t, items)
	items, err = gdb.NextGeocodeItems(ctx, retry.Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	// enqueueing again resets the row
	require.NoError(t, gdb.EnqueueGeocode(ctx, "p1", "Kivikatu 2, Espoo", "", false))
	got, err := gdb.GetGeocodeItem(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusPending, got.Status)
	assert.Equal(t, 0, got.Attempts)
	assert.Equal(t, "Kivikatu 2, Espoo", got.Address)
	assert.Nil(t, got.NextRetryAt)

	require.NoError(t, gdb.ResolveGeocode(ctx, "p1"))
	require.NoError(t, gdb.ResolveGeocode(ctx, "unknown"))
	got, err = gdb.GetGeocodeItem(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusDone, got.Status)
	assert.NotNil(t, got.CompletedAt)

	stats, err := gdb.GeocodeQueueStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats[models.QueueStatusDone])
	assert.Equal(t, int64(1), stats[models.QueueStatusPermanentFail])
	assert.Equal(t, int64(0), stats[models.QueueStatusPending])

	list, err := gdb.ListGeocodeQueue(ctx, models.QueueStatusPermanentFail, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "p2", list[0].ProjectID)

	_, err = gdb.GetGeocodeItem(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormDB_DashboardStats(t *testing.T) {
	gdb := newTestGormDB(t)
	ctx := context.Background()
	lat, lng := 60.17, 24.94

	mapped := models.Project{Name: "Mapped", City: "Helsinki", Phase: models.PhasePlanning, IsPublic: true}
	mapped.SetCoordinates(&lat, &lng)
	seedProject(t, gdb, mapped)
	seedProject(t, gdb, models.Project{Name: "Hidden", City: "Oulu", Phase: models.PhaseConstructionStarted})
	gone := seedProject(t, gdb, models.Project{Name: "Gone", City: "Oulu", Phase: models.PhasePlanning, IsPublic: true})
	require.NoError(t, gdb.SoftDeleteProject(ctx, gone.ID))

	require.NoError(t, gdb.CreateWatch(ctx, &models.Watch{UserID: "u1", Name: "a", Frequency: models.FrequencyDaily, Enabled: true}))
	require.NoError(t, gdb.CreateWatch(ctx, &models.Watch{UserID: "u1", Name: "b", Frequency: models.FrequencyDaily}))
	require.NoError(t, gdb.UpsertUser(ctx, "u1", "a@example.fi", "", time.Now()))

	stats, err := gdb.GetDashboardStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalProjects)
	assert.Equal(t, int64(1), stats.PublicProjects)
	assert.Equal(t, int64(1), stats.HiddenProjects)
	assert.Equal(t, int64(1), stats.Unmappable)
	assert.Equal(t, int64(1), stats.DeletedProjects)
	assert.Equal(t, int64(1), stats.ByPhase["planning"])
	assert.Equal(t, int64(1), stats.ByPhase["construction_started"])
	assert.Equal(t, int64(2), stats.Watches)
	assert.Equal(t, int64(1), stats.EnabledWatches)
	assert.Equal(t, int64(1), stats.Users)
}
