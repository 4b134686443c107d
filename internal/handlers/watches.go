package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"tyomaat-portal/internal/auth"
	"tyomaat-portal/internal/database"
	"tyomaat-portal/internal/models"

	"github.com/gin-gonic/gin"
)

// WatchStore persists a user's saved searches
type WatchStore interface {
	CreateWatch(ctx context.Context, w *models.Watch) error
	ListWatchesByUser(ctx context.Context, userID string) ([]models.Watch, error)
	GetWatchForUser(ctx context.Context, id, userID string) (*models.Watch, error)
	UpdateWatchSettings(ctx context.Context, w *models.Watch) error
	DeleteWatchForUser(ctx context.Context, id, userID string) error
}

// WatchHandler serves the signed-in user's watchlist
type WatchHandler struct {
	store WatchStore
}

// NewWatchHandler creates a new watch handler
func NewWatchHandler(store WatchStore) *WatchHandler {
	return &WatchHandler{store: store}
}

const maxWatchName = 255

type createWatchRequest struct {
	Name      string          `json:"name"`
	Filters   json.RawMessage `json:"filters"`
	Frequency string          `json:"frequency"`
}

type updateWatchRequest struct {
	Name      *string `json:"name"`
	Frequency *string `json:"frequency"`
	Enabled   *bool   `json:"enabled"`
}

func currentUID(c *gin.Context) (string, bool) {
	s, ok := auth.SessionFrom(c)
	if !ok || s.UID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not signed in"})
		return "", false
	}
	return s.UID, true
}

func validName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("name is required")
	}
	if len([]rune(name)) > maxWatchName {
		return "", errors.New("name is too long")
	}
	return name, nil
}

func validFrequency(f string) (models.Frequency, error) {
	freq := models.Frequency(strings.TrimSpace(f))
	if !freq.Valid() {
		return "", errors.New("frequency must be daily or weekly")
	}
	return freq, nil
}

// List returns the caller's watches
func (h *WatchHandler) List(c *gin.Context) {
	uid, ok := currentUID(c)
	if !ok {
		return
	}
	watches, err := h.store.ListWatchesByUser(c.Request.Context(), uid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"watches": watches,
		"count":   len(watches),
	})
}

// Create saves the current catalog filters as a new enabled watch
func (h *WatchHandler) Create(c *gin.Context) {
	uid, ok := currentUID(c)
	if !ok {
		return
	}

	var req createWatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	name, err := validName(req.Name)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Frequency == "" {
		req.Frequency = string(models.FrequencyDaily)
	}
	freq, err := validFrequency(req.Frequency)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	filters, err := models.ParseWatchFilters(req.Filters)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	w := &models.Watch{
		UserID:    uid,
		Name:      name,
		Filters:   filters,
		Frequency: freq,
		Enabled:   true,
	}
	if err := h.store.CreateWatch(c.Request.Context(), w); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, w)
}

// Update renames a watch, changes its frequency or toggles it
func (h *WatchHandler) Update(c *gin.Context) {
	uid, ok := currentUID(c)
	if !ok {
		return
	}

	var req updateWatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	w, err := h.store.GetWatchForUser(ctx, c.Param("id"), uid)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Watch not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if req.Name != nil {
		if w.Name, err = validName(*req.Name); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Frequency != nil {
		if w.Frequency, err = validFrequency(*req.Frequency); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Enabled != nil {
		w.Enabled = *req.Enabled
	}

	if err := h.store.UpdateWatchSettings(ctx, w); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Watch not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, w)
}

// Delete removes one of the caller's watches
func (h *WatchHandler) Delete(c *gin.Context) {
	uid, ok := currentUID(c)
	if !ok {
		return
	}

	err := h.store.DeleteWatchForUser(c.Request.Context(), c.Param("id"), uid)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Watch not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
