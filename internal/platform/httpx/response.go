package httpx

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xxz807/fieldledger/internal/platform/actor"
	"github.com/xxz807/fieldledger/internal/platform/errkind"
)

// ContextKeyActor gin.Context 中保存操作者的 key
const ContextKeyActor = "x-actor"

// Detailer 带有上下文信息的错误 (期间 ID、原分录 ID 等)
type Detailer interface {
	Details() map[string]any
}

// statusByKind 错误类型 -> HTTP 状态码
var statusByKind = map[string]int{
	"UnbalancedEntry":      http.StatusUnprocessableEntity,
	"UnknownAccount":       http.StatusUnprocessableEntity,
	"InvalidDraft":         http.StatusUnprocessableEntity,
	"InvalidTaxItem":       http.StatusUnprocessableEntity,
	"InvalidPeriod":        http.StatusUnprocessableEntity,
	"ReasonRequired":       http.StatusUnprocessableEntity,
	"UnknownZone":          http.StatusUnprocessableEntity,
	"UnknownAuthority":     http.StatusUnprocessableEntity,
	"InvalidReferenceData": http.StatusUnprocessableEntity,
	"PeriodClosed":         http.StatusConflict,
	"PeriodClosing":        http.StatusConflict,
	"AlreadyClosed":        http.StatusConflict,
	"AlreadyVoided":        http.StatusConflict,
	"DuplicateSource":      http.StatusConflict,
	"ReversalImmutable":    http.StatusConflict,
	"OverlappingPeriod":    http.StatusConflict,
	"PeriodGap":            http.StatusConflict,
	"PeriodNotClosed":      http.StatusConflict,
	"RuleConflict":         http.StatusConflict,
	"PeriodNotFound":       http.StatusNotFound,
	"EntryNotFound":        http.StatusNotFound,
	"DeleteForbidden":      http.StatusMethodNotAllowed,
	"Forbidden":            http.StatusForbidden,
	"Unauthorized":         http.StatusUnauthorized,
	"AuditWriteFailed":     http.StatusInternalServerError,
	"StoreUnavailable":     http.StatusServiceUnavailable,
}

// StatusFor 返回错误对应的状态码
func StatusFor(err error) (int, string) {
	kind := errkind.Of(err)
	if status, ok := statusByKind[kind]; ok {
		return status, kind
	}
	return http.StatusInternalServerError, kind
}

// RespondError 统一错误响应: {"error": ..., "kind": ..., 以及上下文字段}
func RespondError(c *gin.Context, err error) {
	status, kind := StatusFor(err)
	body := gin.H{"error": err.Error(), "kind": kind}

	var d Detailer
	if errors.As(err, &d) {
		for k, v := range d.Details() {
			body[k] = v
		}
	}
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", "1")
	}
	c.AbortWithStatusJSON(status, body)
}

// ActorFrom 取出中间件注入的操作者
func ActorFrom(c *gin.Context) (actor.Actor, bool) {
	v, ok := c.Get(ContextKeyActor)
	if !ok {
		return actor.Actor{}, false
	}
	a, ok := v.(actor.Actor)
	return a, ok
}

// RequireActor 没有操作者身份时直接返回 401
func RequireActor(c *gin.Context) (actor.Actor, bool) {
	a, ok := ActorFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": actor.ErrMissingActor.Error(), "kind": "Unauthorized"})
		return actor.Actor{}, false
	}
	return a, true
}
