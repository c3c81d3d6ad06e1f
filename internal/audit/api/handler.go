package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xxz807/fieldledger/internal/audit/domain"
	"github.com/xxz807/fieldledger/internal/audit/service"
	"github.com/xxz807/fieldledger/internal/platform/httpx"
)

type AuditHandler struct {
	recorder *service.Recorder
}

func NewAuditHandler(recorder *service.Recorder) *AuditHandler {
	return &AuditHandler{recorder: recorder}
}

// RegisterRoutes 注册路由
func (h *AuditHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/audit/:target_type/:target_id", h.History)
}

// History 审计历史
// GET /api/v1/audit/journal_entry/42
func (h *AuditHandler) History(c *gin.Context) {
	targetType := domain.TargetType(c.Param("target_type"))
	records, err := h.recorder.History(c.Request.Context(), targetType, c.Param("target_id"))
	if err != nil {
		httpx.RespondError(c, err)
		return
	}

	out := make([]RecordResp, len(records))
	for i, r := range records {
		out[i] = toRecordResp(r)
	}
	c.JSON(http.StatusOK, gin.H{"records": out})
}
