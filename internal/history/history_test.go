package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tyomaat-portal/internal/models"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.ProjectChange{}))
	return NewService(db)
}

func TestDetectChanges_New(t *testing.T) {
	at := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	changes := DetectChanges(nil, &models.Project{ID: "p1", Name: "Koulu"}, at)
	require.Len(t, changes, 1)
	assert.Equal(t, models.ChangeTypeNew, changes[0].ChangeType)
	assert.Equal(t, "Koulu", changes[0].NewValue)
	assert.Equal(t, at, changes[0].DetectedAt)
}

func TestDetectChanges_Fields(t *testing.T) {
	cost := 1500000.0
	before := &models.Project{ID: "p1", Name: "Koulu", City: "Oulu", Phase: models.PhasePlanning}
	after := *before
	after.Phase = models.PhaseConstructionStarted
	after.IsPublic = true
	after.EstimatedCost = &cost
	after.Region = models.StringPtr("Pohjois-Pohjanmaa")
	lat, lng := 65.0121, 25.4651
	after.SetCoordinates(&lat, &lng)

	changes := DetectChanges(before, &after, time.Now())
	types := make(map[string]models.ProjectChange)
	for _, c := range changes {
		types[c.ChangeType] = c
	}
	assert.Len(t, changes, 5)
	assert.Equal(t, "planning", types[models.ChangeTypePhase].OldValue)
	assert.Equal(t, "construction_started", types[models.ChangeTypePhase].NewValue)
	assert.Equal(t, "true", types[models.ChangeTypeVisibility].NewValue)
	assert.Equal(t, "1500000.00", types[models.ChangeTypeCost].NewValue)
	assert.Equal(t, "", types[models.ChangeTypeRegion].OldValue)
	assert.Equal(t, "65.012100,25.465100", types[models.ChangeTypeCoords].NewValue)

	assert.Empty(t, DetectChanges(&after, &after, time.Now()))
}

func TestService_RecordAndQuery(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	base := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	p := &models.Project{ID: "p1", Name: "Koulu", City: "Oulu", Phase: models.PhasePlanning}
	_, err := s.Record(ctx, nil, p, "admin@tyomaat.fi")
	require.NoError(t, err)

	edited := *p
	edited.Name = "Koulukeskus"
	changes, err := s.Record(ctx, p, &edited, "admin@tyomaat.fi")
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.NotZero(t, changes[0].ID)

	changes, err = s.Record(ctx, &edited, &edited, "admin@tyomaat.fi")
	require.NoError(t, err)
	assert.Empty(t, changes)

	require.NoError(t, s.RecordRemoval(ctx, &edited, "admin@tyomaat.fi"))
	_, err = s.Record(ctx, nil, &models.Project{ID: "p2", Name: "Other"}, "")
	require.NoError(t, err)

	hist, err := s.GetProjectHistory(ctx, "p1", 0)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, models.ChangeTypeRemoved, hist[0].ChangeType)
	assert.Equal(t, models.ChangeTypeName, hist[1].ChangeType)
	assert.Equal(t, "admin@tyomaat.fi", hist[1].ChangedBy)

	recent, err := s.GetRecentChanges(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "p2", recent[0].ProjectID)
}
