package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxz807/fieldledger/internal/period/domain"
	"github.com/xxz807/fieldledger/internal/period/service"
	"github.com/xxz807/fieldledger/internal/platform/httpx"
)

type PeriodHandler struct {
	mgr *service.Manager
}

func NewPeriodHandler(mgr *service.Manager) *PeriodHandler {
	return &PeriodHandler{mgr: mgr}
}

// RegisterRoutes 注册路由
func (h *PeriodHandler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/periods")
	{
		g.GET("", h.List)
		g.POST("", h.Create)
		g.GET("/lookup", h.Lookup)
		g.POST("/:id/start-close", h.StartClose)
		g.POST("/:id/close", h.Close)
		g.POST("/:id/reopen", h.Reopen)
	}
}

// Create 新建期间
// POST /api/v1/periods
func (h *PeriodHandler) Create(c *gin.Context) {
	a, ok := httpx.RequireActor(c)
	if !ok {
		return
	}
	var req CreatePeriodReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	start, err1 := time.Parse(time.DateOnly, req.StartDate)
	end, err2 := time.Parse(time.DateOnly, req.EndDate)
	if err1 != nil || err2 != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "dates must be YYYY-MM-DD"})
		return
	}

	p, err := h.mgr.CreatePeriod(c.Request.Context(), service.CreatePeriodRequest{
		Name:      req.Name,
		StartDate: start,
		EndDate:   end,
	}, a)
	if err != nil {
		httpx.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toPeriodResp(p))
}

// List GET /api/v1/periods
func (h *PeriodHandler) List(c *gin.Context) {
	periods, err := h.mgr.List(c.Request.Context())
	if err != nil {
		httpx.RespondError(c, err)
		return
	}
	out := make([]PeriodResp, len(periods))
	for i := range periods {
		out[i] = toPeriodResp(&periods[i])
	}
	c.JSON(http.StatusOK, gin.H{"periods": out})
}

// Lookup GET /api/v1/periods/lookup?date=2025-01-15
func (h *PeriodHandler) Lookup(c *gin.Context) {
	date, err := time.Parse(time.DateOnly, c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	p, err := h.mgr.GetPeriodFor(c.Request.Context(), date)
	if err != nil {
		httpx.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPeriodResp(p))
}

// StartClose POST /api/v1/periods/:id/start-close
func (h *PeriodHandler) StartClose(c *gin.Context) {
	h.transition(c, func(id int64) (*domain.AccountingPeriod, error) {
		a, _ := httpx.ActorFrom(c)
		return h.mgr.StartClose(c.Request.Context(), id, a)
	})
}

// Close POST /api/v1/periods/:id/close
func (h *PeriodHandler) Close(c *gin.Context) {
	h.transition(c, func(id int64) (*domain.AccountingPeriod, error) {
		a, _ := httpx.ActorFrom(c)
		return h.mgr.ClosePeriod(c.Request.Context(), id, a)
	})
}

// Reopen POST /api/v1/periods/:id/reopen
func (h *PeriodHandler) Reopen(c *gin.Context) {
	var req ReopenReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	h.transition(c, func(id int64) (*domain.AccountingPeriod, error) {
		a, _ := httpx.ActorFrom(c)
		return h.mgr.ReopenPeriod(c.Request.Context(), id, a, req.Reason)
	})
}

func (h *PeriodHandler) transition(c *gin.Context, fn func(id int64) (*domain.AccountingPeriod, error)) {
	if _, ok := httpx.RequireActor(c); !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid period id"})
		return
	}
	p, err := fn(id)
	if err != nil {
		httpx.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPeriodResp(p))
}
