package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxz807/fieldledger/internal/platform/httpx"
	"github.com/xxz807/fieldledger/internal/tax/domain"
	"github.com/xxz807/fieldledger/internal/tax/service"
)

type TaxHandler struct {
	resolver  *service.Resolver
	liability *service.Liability
}

func NewTaxHandler(resolver *service.Resolver, liability *service.Liability) *TaxHandler {
	return &TaxHandler{resolver: resolver, liability: liability}
}

// RegisterRoutes 注册路由
func (h *TaxHandler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/tax")
	{
		g.POST("/compute", h.Compute)
		g.GET("/zones/:key", h.Zone)
		g.GET("/liability", h.Liability)
	}
}

// Compute 试算税额，不落账
// POST /api/v1/tax/compute
func (h *TaxHandler) Compute(c *gin.Context) {
	var req ComputeTaxReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	date, err := time.Parse(time.DateOnly, req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}

	items := make([]domain.LineItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = domain.LineItem{Ref: it.Ref, ItemType: domain.ItemType(it.ItemType), TaxableAmount: it.TaxableAmount}
	}

	res, err := h.resolver.ComputeTax(c.Request.Context(), items, req.Zone, date)
	if err != nil {
		httpx.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toComputeResp(req.Zone, date, res))
}

// Zone GET /api/v1/tax/zones/91101
func (h *TaxHandler) Zone(c *gin.Context) {
	auths, err := h.resolver.ResolveZone(c.Request.Context(), c.Param("key"))
	if err != nil {
		httpx.RespondError(c, err)
		return
	}
	out := make([]AuthorityResp, len(auths))
	for i, a := range auths {
		out[i] = toAuthorityResp(a)
	}
	c.JSON(http.StatusOK, gin.H{"zone": c.Param("key"), "authorities": out})
}

// Liability 应缴税额
// GET /api/v1/tax/liability?from=2025-01-01&to=2025-01-31
// GET /api/v1/tax/liability?period_id=3
func (h *TaxHandler) Liability(c *gin.Context) {
	ctx := c.Request.Context()

	if raw := c.Query("period_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid period_id"})
			return
		}
		rep, err := h.liability.ReportForPeriod(ctx, id)
		if err != nil {
			httpx.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, toLiabilityResp(rep))
		return
	}

	from, err1 := time.Parse(time.DateOnly, c.Query("from"))
	to, err2 := time.Parse(time.DateOnly, c.Query("to"))
	if err1 != nil || err2 != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from and to must be YYYY-MM-DD, or pass period_id"})
		return
	}
	rep, err := h.liability.Report(ctx, from, to)
	if err != nil {
		httpx.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toLiabilityResp(rep))
}
