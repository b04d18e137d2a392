package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"txwizard/application/flows"
	"txwizard/application/session"
	"txwizard/domain/fee"
	"txwizard/domain/wizard"
	"txwizard/infrastructure/idempotency"
)

// FeeTable is the fee lookup the API exposes to clients.
type FeeTable interface {
	Tiers(instrumentID string) []string
	Resolve(instrumentID, tier string) (fee.Quote, error)
}

// History lists the committed submissions of a wizard.
type History interface {
	ForWizard(ctx context.Context, wizardID string) ([]idempotency.Entry, error)
}

// WizardHandler handles HTTP requests driving wizard instances.
type WizardHandler struct {
	sessions *session.Service
	fees     FeeTable
	history  History
	logger   *zap.Logger
}

func NewWizardHandler(sessions *session.Service, fees FeeTable, logger *zap.Logger) *WizardHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WizardHandler{sessions: sessions, fees: fees, logger: logger.Named("api")}
}

// SetHistory enables GET /wizards/:id/submissions.
func (h *WizardHandler) SetHistory(hist History) { h.history = hist }

// StartRequest is the body of POST /wizards.
type StartRequest struct {
	Flow string `json:"flow" binding:"required"`
}

// SetFieldRequest is the body of PUT /wizards/:id/fields.
type SetFieldRequest struct {
	Name  string `json:"name" binding:"required"`
	Value string `json:"value"`
}

// StateResponse carries a snapshot and the derived values computed from it.
// Accepted reports whether an advance or submit call moved the wizard.
type StateResponse struct {
	State    wizard.State   `json:"state"`
	Derived  wizard.Derived `json:"derived"`
	Accepted *bool          `json:"accepted,omitempty"`
}

type stepInfo struct {
	Name   string   `json:"name"`
	Title  string   `json:"title,omitempty"`
	Fields []string `json:"fields"`
}

type flowInfo struct {
	Flow   string     `json:"flow"`
	Steps  []stepInfo `json:"steps"`
	Priced bool       `json:"priced"`
}

// RegisterRoutes mounts the wizard endpoints on r.
func (h *WizardHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/flows", h.ListFlows)
	r.GET("/fees/:instrument", h.GetFees)

	w := r.Group("/wizards")
	{
		w.POST("", h.Start)
		w.GET("", h.List)
		w.GET("/:id", h.Get)
		w.PUT("/:id/fields", h.SetField)
		w.POST("/:id/advance", h.Advance)
		w.POST("/:id/back", h.Back)
		w.POST("/:id/submit", h.Submit)
		w.POST("/:id/restart", h.Restart)
		w.DELETE("/:id", h.Discard)
		w.GET("/:id/submissions", h.Submissions)
	}
}

// Start handles POST /wizards
func (h *WizardHandler) Start(c *gin.Context) {
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "flow is required"})
		return
	}
	m, err := h.sessions.Start(req.Flow)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, respond(m, nil))
}

// List handles GET /wizards
func (h *WizardHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"wizards": h.sessions.List()})
}

// Get handles GET /wizards/:id
func (h *WizardHandler) Get(c *gin.Context) {
	h.with(c, func(m *wizard.Machine) {
		c.JSON(http.StatusOK, respond(m, nil))
	})
}

// SetField handles PUT /wizards/:id/fields
func (h *WizardHandler) SetField(c *gin.Context) {
	var req SetFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	h.with(c, func(m *wizard.Machine) {
		if err := m.SetField(req.Name, req.Value); err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, respond(m, nil))
	})
}

// Advance handles POST /wizards/:id/advance
func (h *WizardHandler) Advance(c *gin.Context) {
	h.with(c, func(m *wizard.Machine) {
		ok, err := m.Advance()
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, respond(m, &ok))
	})
}

// Back handles POST /wizards/:id/back
func (h *WizardHandler) Back(c *gin.Context) {
	h.with(c, func(m *wizard.Machine) {
		if err := m.Back(); err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, respond(m, nil))
	})
}

// Submit handles POST /wizards/:id/submit. With ?wait=true the response is
// held until the submission resolves or the request ends.
func (h *WizardHandler) Submit(c *gin.Context) {
	h.with(c, func(m *wizard.Machine) {
		started, err := m.ConfirmAndSubmit(c.Request.Context())
		if err != nil {
			h.fail(c, err)
			return
		}
		status := http.StatusAccepted
		if wait, _ := strconv.ParseBool(c.Query("wait")); wait && started {
			if _, err := m.Await(c.Request.Context()); err == nil {
				status = http.StatusOK
			}
		}
		c.JSON(status, respond(m, &started))
	})
}

// Restart handles POST /wizards/:id/restart
func (h *WizardHandler) Restart(c *gin.Context) {
	h.with(c, func(m *wizard.Machine) {
		if err := m.Restart(); err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, respond(m, nil))
	})
}

// Discard handles DELETE /wizards/:id
func (h *WizardHandler) Discard(c *gin.Context) {
	if err := h.sessions.Discard(c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Submissions handles GET /wizards/:id/submissions
// The ledger outlives the session, so discarded wizards are still listed.
func (h *WizardHandler) Submissions(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "submission history is not enabled"})
		return
	}
	entries, err := h.history.ForWizard(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if entries == nil {
		entries = []idempotency.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"wizard_id": c.Param("id"), "submissions": entries})
}

// ListFlows handles GET /flows
func (h *WizardHandler) ListFlows(c *gin.Context) {
	catalog := h.sessions.Catalog()
	var out []flowInfo
	for _, name := range catalog.Names() {
		def, err := catalog.Get(name)
		if err != nil {
			continue
		}
		info := flowInfo{Flow: def.Flow, Priced: def.Pricing != nil}
		for _, s := range def.Steps {
			info.Steps = append(info.Steps, stepInfo{Name: s.Name, Title: s.Title, Fields: s.Fields})
		}
		out = append(out, info)
	}
	c.JSON(http.StatusOK, gin.H{"flows": out})
}

// GetFees handles GET /fees/:instrument
func (h *WizardHandler) GetFees(c *gin.Context) {
	instrument := c.Param("instrument")
	tiers := h.fees.Tiers(instrument)
	if len(tiers) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no fee tiers for " + instrument, "tiers": []fee.Quote{}})
		return
	}
	quotes := make([]fee.Quote, 0, len(tiers))
	for _, t := range tiers {
		q, err := h.fees.Resolve(instrument, t)
		if err != nil {
			continue
		}
		quotes = append(quotes, q)
	}
	c.JSON(http.StatusOK, gin.H{"instrument": instrument, "tiers": quotes})
}

// HealthCheck handles GET /health
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": time.Now().UTC()})
}

func (h *WizardHandler) with(c *gin.Context, fn func(m *wizard.Machine)) {
	m, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	fn(m)
}

func (h *WizardHandler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, wizard.ErrIllegalPhase), errors.Is(err, session.ErrSubmissionInFlight):
		status = http.StatusConflict
	case errors.Is(err, session.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, flows.ErrUnknownFlow), errors.Is(err, wizard.ErrUnknownField):
		status = http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		status = http.StatusRequestTimeout
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func respond(m *wizard.Machine, accepted *bool) StateResponse {
	return StateResponse{State: m.Snapshot(), Derived: m.Derived(), Accepted: accepted}
}
