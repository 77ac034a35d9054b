package http

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"reconciler/internal/application/reconcile"
	"reconciler/internal/domain/entity/report"
)

const (
	checksBasePath = "/api/v1/checks"
	dateLayout     = "2006-01-02"
)

var (
	errNoRun      = errors.New("no reconciliation run has finished yet")
	errRunPending = errors.New("a reconciliation run is already in progress")
)

// RunHistory exposes the last finished run.
type RunHistory interface {
	Last() (report.RunSummary, bool)
}

// RunTrigger starts runs on demand.
type RunTrigger interface {
	Fire(trigger string, windowEnd time.Time) bool
	Running() bool
}

type Handler struct {
	router   *gin.Engine
	history  RunHistory
	trigger  RunTrigger
	cache    *redis.Client
	cacheTTL time.Duration
	now      func() time.Time
}

// NewHandler wires the service routes. cache and metrics are optional.
func NewHandler(history RunHistory, trigger RunTrigger, metrics http.Handler, cache *redis.Client, cacheTTL time.Duration) *Handler {
	router := gin.New()
	router.Use(gin.Recovery())

	h := &Handler{
		router:   router,
		history:  history,
		trigger:  trigger,
		cache:    cache,
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
	h.registerRoutes(metrics)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes(metrics http.Handler) {
	h.router.GET("/api/isalive", h.isAlive)
	if metrics != nil {
		h.router.GET("/metrics", gin.WrapH(metrics))
	}

	checks := h.router.Group(checksBasePath)
	{
		last := checks.Group("/last")
		if h.cache != nil {
			last.Use(h.cacheMiddleware())
		}
		last.GET("", h.lastRun)
		checks.POST("/run", h.runChecks)
	}
}

func (h *Handler) isAlive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"running": h.trigger.Running(),
	})
}

// lastRun returns the summary of the most recent finished run.
func (h *Handler) lastRun(c *gin.Context) {
	summary, ok := h.history.Last()
	if !ok {
		writeError(c, http.StatusNotFound, errNoRun)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// runChecks starts a manual run. The optional date query names the UTC day to
// reconcile; without it the previous day is used.
func (h *Handler) runChecks(c *gin.Context) {
	windowEnd, err := parseWindowEnd(c, h.now())
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	if !h.trigger.Fire(reconcile.TriggerManual, windowEnd) {
		writeError(c, http.StatusConflict, errRunPending)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"trigger":    reconcile.TriggerManual,
		"window_end": windowEnd.Format(time.RFC3339),
	})
}

func parseWindowEnd(c *gin.Context, now time.Time) (time.Time, error) {
	value := c.Query("date")
	if value == "" {
		return reconcile.WindowEnd(now), nil
	}
	day, err := time.ParseInLocation(dateLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("date must look like %s: %w", dateLayout, err)
	}
	windowEnd := day.Add(24 * time.Hour)
	if windowEnd.After(reconcile.WindowEnd(now)) {
		return time.Time{}, fmt.Errorf("date %s is not over yet", value)
	}
	return windowEnd, nil
}

func writeError(c *gin.Context, status int, err error) {
	if err == nil {
		status = http.StatusInternalServerError
		err = errors.New("unknown error")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// cacheMiddleware caches successful GET responses in Redis.
func (h *Handler) cacheMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.cache == nil || c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := h.cacheKey(c)
		ctx := c.Request.Context()

		if cached, err := h.cache.Get(ctx, key).Result(); err == nil {
			c.Data(http.StatusOK, "application/json", []byte(cached))
			c.Abort()
			return
		}

		recorder := &responseRecorder{
			ResponseWriter: c.Writer,
			status:         http.StatusOK,
			body:           &bytes.Buffer{},
		}
		c.Writer = recorder

		c.Next()

		if recorder.status == http.StatusOK && recorder.body.Len() > 0 {
			_ = h.cache.Set(ctx, key, recorder.body.Bytes(), h.cacheTTL).Err()
		}
	}
}

type responseRecorder struct {
	gin.ResponseWriter
	body   *bytes.Buffer
	status int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	if len(data) > 0 {
		r.body.Write(data)
	}
	return r.ResponseWriter.Write(data)
}

// cacheKey carries the finish time of the last run, so a newer run is never
// answered from an entry cached for the previous one.
func (h *Handler) cacheKey(c *gin.Context) string {
	run := "none"
	if last, ok := h.history.Last(); ok {
		run = strconv.FormatInt(last.FinishedAt.UnixNano(), 10)
	}
	return fmt.Sprintf("reconciler:http:%s:%s?%s:%s", c.Request.Method, c.FullPath(), c.Request.URL.RawQuery, run)
}
