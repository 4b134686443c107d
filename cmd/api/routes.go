package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"time"

	"tyomaat-portal/internal/auth"
	"tyomaat-portal/internal/digest"
	"tyomaat-portal/internal/handlers"
	"tyomaat-portal/internal/logging"
	"tyomaat-portal/internal/ratelimit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func (a *app) setupRouter(logger *slog.Logger, admin *handlers.AdminHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if a.cfg.Logging.LogRequests {
		r.Use(logging.RequestLogger(logger))
	}

	r.Use(cors.New(cors.Config{
		AllowOrigins:     a.cfg.CORS.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(ratelimit.Middleware(a.limiter, "/health", "/api/digests"))

	// The gate sees every request so refreshed cookies reach public pages too
	var authn auth.Authenticator
	if a.authn != nil {
		authn = a.authn
	}
	var users auth.UserRecorder
	if a.gormDB != nil {
		users = a.gormDB
	}
	gate := auth.NewGate(authn, auth.GateConfig{
		ProtectedPrefixes: a.cfg.Auth.ProtectedPrefixes,
		AdminPrefixes:     a.cfg.Auth.AdminPrefixes,
		AdminEmails:       a.cfg.Auth.AdminEmails,
		LoginPath:         a.cfg.Auth.LoginPath,
		SignedInHome:      a.cfg.Auth.SignedInHome,
	}, users, a.hub)
	r.Use(gate.Middleware())

	a.hub.Subscribe(func(ev auth.Event) {
		log.Printf("Auth: %s uid=%s", ev.Type, ev.UID)
	})

	r.GET("/health", a.healthCheck)

	if a.authn != nil {
		session := auth.NewSessionHandler(a.authn, users, a.hub)
		r.POST("/api/session", session.SignIn)
		r.DELETE("/api/session", session.SignOut)
	}

	catalogHandler := handlers.NewCatalogHandler(a.db, a.cache, a.cfg.Redis.GetCatalogTTL(), searcher(a))
	api := r.Group("/api")
	{
		api.GET("/projects", catalogHandler.ListProjects)
		api.GET("/projects/map", catalogHandler.MapClusters)
		api.GET("/projects/:id", catalogHandler.GetProject)
		api.GET("/search", catalogHandler.Search)
		api.GET("/ratelimit/stats", func(c *gin.Context) {
			c.JSON(http.StatusOK, a.limiter.GetStats())
		})

		digestHandler := digest.NewHandler(a.digestJob, a.cfg.Digest.CronSecret, a.cfg.MissingDigestSettings())
		api.GET("/digests", digestHandler.Run)
	}

	if a.gormDB != nil {
		watches := handlers.NewWatchHandler(a.gormDB)
		w := r.Group("/projects/watches")
		{
			w.GET("", watches.List)
			w.POST("", watches.Create)
			w.PATCH("/:id", watches.Update)
			w.DELETE("/:id", watches.Delete)
		}
	}

	if admin != nil {
		d := r.Group("/dashboard")
		{
			d.GET("/projects", admin.ListProjects)
			d.POST("/projects", admin.CreateProject)
			d.GET("/projects/:id", admin.GetProject)
			d.PUT("/projects/:id", admin.UpdateProject)
			d.PATCH("/projects/:id/visibility", admin.SetVisibility)
			d.DELETE("/projects/:id", admin.DeleteProject)
			d.GET("/projects/:id/history", admin.GetProjectHistory)
			d.POST("/projects/:id/geocode", admin.RetryGeocode)

			d.GET("/stats", admin.GetStats)
			d.GET("/changes", admin.GetRecentChanges)
			d.GET("/geocode/queue", admin.GetGeocodeQueue)

			d.POST("/cleanup/run", admin.RunCleanup)
			d.GET("/cleanup/logs", admin.GetDeleteLogs)
			d.POST("/digests/run", admin.RunDigests)
			d.POST("/search/reindex", admin.ReindexSearch)
		}
		log.Println("Dashboard routes registered at /dashboard/*")
	}

	return r
}

func searcher(a *app) handlers.ProjectSearcher {
	if a.search == nil {
		return nil
	}
	return a.search
}

func (a *app) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	dbStatus := "ok"
	if err := a.db.Ping(ctx); err != nil {
		status = http.StatusServiceUnavailable
		dbStatus = err.Error()
	}
	c.JSON(status, gin.H{
		"status":   http.StatusText(status),
		"database": dbStatus,
		"time":     time.Now(),
	})
}
