package digest

import (
	"crypto/subtle"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Handler serves GET /api/digests
type Handler struct {
	job     *Job
	secret  string
	missing []string
}

// NewHandler creates the endpoint. missing lists configuration that is absent;
// while it is non-empty, or job is nil, every call answers 500.
func NewHandler(job *Job, secret string, missing []string) *Handler {
	return &Handler{job: job, secret: secret, missing: missing}
}

func (h *Handler) Run(c *gin.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Digest: run panicked: %v", r)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "internal error"})
		}
	}()

	if msg := h.configError(); msg != "" {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": msg})
		return
	}

	given := c.Query("secret")
	if given == "" || subtle.ConstantTimeCompare([]byte(given), []byte(h.secret)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "unauthorized"})
		return
	}

	debug := c.Query("debug") == "1"
	res, err := h.job.Run(c.Request.Context(), debug)
	if err != nil {
		log.Printf("Digest: run failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}

	body := gin.H{"ok": true, "checked": res.Checked, "sent": res.Sent}
	if debug {
		body["debugRows"] = res.DebugRows
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) configError() string {
	if len(h.missing) > 0 {
		return fmt.Sprintf("missing configuration: %s", strings.Join(h.missing, ", "))
	}
	if h.secret == "" {
		return "missing configuration: CRON_SECRET"
	}
	if h.job == nil {
		return "digest job is not configured"
	}
	return ""
}
