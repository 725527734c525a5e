package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/sitecheck/config"
	"github.com/use-agent/sitecheck/crawler"
	"github.com/use-agent/sitecheck/metrics"
	"github.com/use-agent/sitecheck/models"
	"github.com/use-agent/sitecheck/prober"
	"github.com/use-agent/sitecheck/report"
	"github.com/use-agent/sitecheck/store"
	"github.com/use-agent/sitecheck/webhook"
)

// Sessions runs crawl sessions in the background and serves their state.
// At most cfg.Server.MaxSessions crawls run at once; later sessions wait
// for a slot in the processing state.
type Sessions struct {
	cfg      *config.Config
	store    *store.Store
	launch   crawler.LaunchFunc
	prober   prober.Prober
	metrics  *metrics.Metrics
	webhooks *webhook.Sender

	slots  chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSessions wires the session handlers. m and hooks may be nil.
func NewSessions(cfg *config.Config, st *store.Store, launch crawler.LaunchFunc, p prober.Prober, m *metrics.Metrics, hooks *webhook.Sender) *Sessions {
	maxSessions := cfg.Server.MaxSessions
	if maxSessions < 1 {
		maxSessions = 1
	}
	if hooks == nil {
		hooks = webhook.NewSender(nil)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Sessions{
		cfg:      cfg,
		store:    st,
		launch:   launch,
		prober:   p,
		metrics:  m,
		webhooks: hooks,
		slots:    make(chan struct{}, maxSessions),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Active is the number of sessions still processing.
func (h *Sessions) Active() int {
	return h.store.Active()
}

// MaxSessions is the concurrent crawl limit.
func (h *Sessions) MaxSessions() int {
	return cap(h.slots)
}

// Shutdown cancels running crawls and waits for them to release their
// browsers.
func (h *Sessions) Shutdown() {
	h.cancel()
	h.wg.Wait()
}

// Wait blocks until every started session has finished.
func (h *Sessions) Wait() {
	h.wg.Wait()
}

// Create returns a handler for POST /api/v1/sessions.
func (h *Sessions) Create() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.SessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.SessionResponse{
				Status: models.StatusFailed,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: "invalid request body: " + err.Error(),
				},
			})
			return
		}

		plan, err := crawler.NewPlan(h.cfg, req)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.SessionResponse{
				Status: models.StatusFailed,
				Error:  models.CategorizeError(err, models.ErrCodeInvalidConfig, "invalid session").ToDetail(),
			})
			return
		}

		job := store.NewJob(plan.Session.ID)
		if !h.store.Put(job) {
			c.JSON(http.StatusTooManyRequests, models.SessionResponse{
				Status: models.StatusFailed,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeRateLimited,
					Message: "too many sessions in progress, retry later",
				},
			})
			return
		}

		h.wg.Add(1)
		go h.run(job, plan, req)

		c.JSON(http.StatusOK, models.SessionResponse{
			ID:     job.ID,
			Status: models.StatusProcessing,
		})
	}
}

// Get returns a handler for GET /api/v1/sessions/:id.
func (h *Sessions) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := h.lookup(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, job.Snapshot())
	}
}

// Report returns a handler for GET /api/v1/sessions/:id/report, which
// renders the current report as HTML.
func (h *Sessions) Report() gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := h.lookup(c)
		if !ok {
			return
		}
		res := job.Result()
		if res == nil {
			c.JSON(http.StatusConflict, models.ErrorResponse{Error: &models.ErrorDetail{
				Code:    models.ErrCodeNotFound,
				Message: "session has no report yet",
			}})
			return
		}
		c.Status(http.StatusOK)
		c.Header("Content-Type", "text/html; charset=utf-8")
		if err := report.WriteHTML(c.Writer, res.Report()); err != nil {
			slog.Error("report render failed", "session", job.ID, "error", err)
		}
	}
}

// Delete returns a handler for DELETE /api/v1/sessions/:id. It stops a
// running crawl; the page being checked still completes. A session still
// waiting for a crawl slot ends without crawling.
func (h *Sessions) Delete() gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := h.lookup(c)
		if !ok {
			return
		}
		if !job.Stop() {
			c.JSON(http.StatusConflict, models.SessionResponse{
				ID:     job.ID,
				Status: job.Status(),
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: "session is not running",
				},
			})
			return
		}
		c.JSON(http.StatusOK, models.SessionResponse{ID: job.ID, Status: job.Status()})
	}
}

func (h *Sessions) lookup(c *gin.Context) (*store.Job, bool) {
	job, ok := h.store.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: &models.ErrorDetail{
			Code:    models.ErrCodeNotFound,
			Message: "session not found",
		}})
		return nil, false
	}
	return job, true
}

// run waits for a crawl slot, then crawls to completion.
func (h *Sessions) run(job *store.Job, plan *crawler.Plan, req models.SessionRequest) {
	defer h.wg.Done()

	select {
	case h.slots <- struct{}{}:
	case <-h.ctx.Done():
		h.fail(job, req, models.CategorizeError(h.ctx.Err(), models.ErrCodeInternal, "server shutting down"))
		return
	}
	defer func() { <-h.slots }()

	if job.StopRequested() {
		res := models.NewSessionResult(plan.Session)
		res.Finish(models.StopStopped)
		job.Complete(res)
		slog.Info("session stopped before start", "session", job.ID)
		h.notifyCompleted(job, req, res)
		return
	}

	h.metrics.SessionStarted()
	defer h.metrics.SessionFinished()

	plan.Crawl.Metrics = h.metrics
	if req.WebhookURL != "" {
		plan.Crawl.OnPage = func(p *models.PageResult) {
			h.webhooks.DeliverAsync(req.WebhookURL, req.WebhookSecret,
				webhook.NewEvent(webhook.EventPage, job.ID, p.Report()))
		}
	}

	sched, err := plan.Start(h.launch, h.prober)
	if err != nil {
		h.fail(job, req, err)
		return
	}
	job.Attach(sched.Result(), sched.Stop)

	res := sched.Run(h.ctx)
	job.Complete(res)
	h.notifyCompleted(job, req, res)
}

func (h *Sessions) notifyCompleted(job *store.Job, req models.SessionRequest, res *models.SessionResult) {
	if req.WebhookURL != "" {
		h.webhooks.DeliverAsync(req.WebhookURL, req.WebhookSecret,
			webhook.NewEvent(webhook.EventCompleted, job.ID, res.Report()))
	}
}

func (h *Sessions) fail(job *store.Job, req models.SessionRequest, err error) {
	slog.Error("session failed", "session", job.ID, "error", err)
	job.Fail(err)
	if req.WebhookURL != "" {
		detail := models.CategorizeError(err, models.ErrCodeInternal, "session failed").ToDetail()
		h.webhooks.DeliverAsync(req.WebhookURL, req.WebhookSecret,
			webhook.NewEvent(webhook.EventFailed, job.ID, detail))
	}
}
