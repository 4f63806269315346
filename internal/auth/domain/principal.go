// Package domain 认证领域层
// Principal 是请求级安全主体，由中间件解析令牌后写入请求上下文，
// 所有权限判断都基于显式传递的 Principal，不依赖任何全局安全状态。
package domain

import (
	"context"

	userdomain "github.com/wyfcoding/kpstreasury/internal/user/domain"
)

// Principal 请求安全主体
type Principal struct {
	UserID   uint64
	Username string
	Email    string
	Role     userdomain.Role
}

type principalKey struct{}

// WithPrincipal 将安全主体写入上下文
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext 从上下文读取安全主体
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok
}
