package actor

import (
	"context"
	"errors"
	"fmt"

	"github.com/xxz807/fieldledger/internal/platform/errkind"
)

// Role 操作者角色，由外部身份系统提供
type Role string

const (
	RoleBookkeeper Role = "bookkeeper"
	RoleAccountant Role = "accountant"
	RoleController Role = "controller" // 唯一的高权限角色 (可重开已关账期间)
	RoleSystem     Role = "system"
)

var (
	// ErrMissingActor 请求没有携带身份信息
	ErrMissingActor = errors.New("actor: missing actor identity")
	ErrUnknownRole  = errors.New("actor: unknown role")
)

func init() {
	errkind.Register(ErrMissingActor, "Unauthorized")
	errkind.Register(ErrUnknownRole, "Unauthorized")
}

// Actor 已认证的操作者
type Actor struct {
	ID        string
	Role      Role
	Origin    string // 网络来源 (IP)
	RequestID string
}

// IsElevated 是否为高权限角色
func (a Actor) IsElevated() bool {
	return a.Role == RoleController
}

// Validate 基础校验：必须有 ID 和已知角色
func (a Actor) Validate() error {
	if a.ID == "" {
		return ErrMissingActor
	}
	switch a.Role {
	case RoleBookkeeper, RoleAccountant, RoleController, RoleSystem:
		return nil
	default:
		return fmt.Errorf("%w %q", ErrUnknownRole, a.Role)
	}
}

// System CLI 等内部调用使用的操作者
func System(id string) Actor {
	return Actor{ID: id, Role: RoleSystem, Origin: "local"}
}

type ctxKey struct{}

// WithActor 把操作者放入 context
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

// FromContext 从 context 读取操作者
func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ctxKey{}).(Actor)
	return a, ok
}
