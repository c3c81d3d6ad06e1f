package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxz807/fieldledger/internal/ledger/service"
	"github.com/xxz807/fieldledger/internal/platform/httpx"
)

type LedgerHandler struct {
	svc *service.LedgerService
}

func NewLedgerHandler(svc *service.LedgerService) *LedgerHandler {
	return &LedgerHandler{svc: svc}
}

// RegisterRoutes 注册路由
func (h *LedgerHandler) RegisterRoutes(r *gin.RouterGroup) {
	ledgerGroup := r.Group("/ledger")
	{
		ledgerGroup.GET("/accounts", h.ListAccounts)
		ledgerGroup.POST("/entries", h.PostEntry)
		ledgerGroup.GET("/entries/:id", h.GetEntry)
		ledgerGroup.POST("/entries/:id/void", h.VoidEntry)
		ledgerGroup.PATCH("/entries/:id", h.UpdateMemo)
		ledgerGroup.DELETE("/entries/:id", h.DeleteEntry)
		ledgerGroup.GET("/trial-balance", h.TrialBalance)
	}
}

// PostEntry 记账接口
// POST /api/v1/ledger/entries
func (h *LedgerHandler) PostEntry(c *gin.Context) {
	a, ok := httpx.RequireActor(c)
	if !ok {
		return
	}

	// 1. 参数绑定与基础校验
	var req PostEntryReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	date, err := time.Parse(time.DateOnly, req.EntryDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "entry_date must be YYYY-MM-DD"})
		return
	}

	// 2. 调用业务逻辑
	entry, err := h.svc.Post(c.Request.Context(), req.toService(date), a)
	if err != nil {
		httpx.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toEntryResp(entry))
}

// GetEntry GET /api/v1/ledger/entries/:id
func (h *LedgerHandler) GetEntry(c *gin.Context) {
	id, ok := entryID(c)
	if !ok {
		return
	}
	entry, err := h.svc.GetEntry(c.Request.Context(), id)
	if err != nil {
		httpx.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toEntryResp(entry))
}

// VoidEntry 作废并生成冲销分录
// POST /api/v1/ledger/entries/:id/void
func (h *LedgerHandler) VoidEntry(c *gin.Context) {
	a, ok := httpx.RequireActor(c)
	if !ok {
		return
	}
	id, ok := entryID(c)
	if !ok {
		return
	}
	var req VoidReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	res, err := h.svc.Void(c.Request.Context(), id, a, req.Reason)
	if err != nil {
		httpx.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"original": toEntryResp(res.Original),
		"reversal": toEntryResp(res.Reversal),
	})
}

// UpdateMemo 只允许修改备注
// PATCH /api/v1/ledger/entries/:id
func (h *LedgerHandler) UpdateMemo(c *gin.Context) {
	a, ok := httpx.RequireActor(c)
	if !ok {
		return
	}
	id, ok := entryID(c)
	if !ok {
		return
	}
	var req UpdateMemoReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	entry, err := h.svc.UpdateMemo(c.Request.Context(), id, req.Memo, a, req.Reason)
	if err != nil {
		httpx.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toEntryResp(entry))
}

// DeleteEntry 永远拒绝，但留下审计
// DELETE /api/v1/ledger/entries/:id?reason=...
func (h *LedgerHandler) DeleteEntry(c *gin.Context) {
	a, ok := httpx.RequireActor(c)
	if !ok {
		return
	}
	id, ok := entryID(c)
	if !ok {
		return
	}
	httpx.RespondError(c, h.svc.InterceptDelete(c.Request.Context(), id, a, c.Query("reason")))
}

// TrialBalance GET /api/v1/ledger/trial-balance?from=2025-01-01&to=2025-01-31&view=gross
func (h *LedgerHandler) TrialBalance(c *gin.Context) {
	from, err1 := time.Parse(time.DateOnly, c.Query("from"))
	to, err2 := time.Parse(time.DateOnly, c.Query("to"))
	if err1 != nil || err2 != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from and to must be YYYY-MM-DD"})
		return
	}
	gross := false
	switch c.DefaultQuery("view", "net") {
	case "net":
	case "gross":
		gross = true
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "view must be net or gross"})
		return
	}

	tb, err := h.svc.TrialBalance(c.Request.Context(), from, to, gross)
	if err != nil {
		httpx.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTrialBalanceResp(tb))
}

// ListAccounts GET /api/v1/ledger/accounts
func (h *LedgerHandler) ListAccounts(c *gin.Context) {
	accounts, err := h.svc.ListAccounts(c.Request.Context())
	if err != nil {
		httpx.RespondError(c, err)
		return
	}
	out := make([]AccountResp, len(accounts))
	for i, acc := range accounts {
		out[i] = AccountResp{
			ID:          acc.ID,
			AccountCode: acc.AccountCode,
			Name:        acc.Name,
			Type:        acc.Type.String(),
			Currency:    acc.Currency,
			Archived:    acc.Archived(),
		}
	}
	c.JSON(http.StatusOK, gin.H{"accounts": out})
}

func entryID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid entry id"})
		return 0, false
	}
	return id, true
}
