// Package domain 用户仓储接口
package domain

import "context"

// RoleCount 按角色的用户数
type RoleCount struct {
	Role  Role  `json:"role"`
	Count int64 `json:"count"`
}

type UserRepository interface {
	Save(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id uint64) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Delete(ctx context.Context, id uint64) error
	List(ctx context.Context, offset, limit int) ([]*User, int64, error)
	ListByRole(ctx context.Context, role Role) ([]*User, error)
	ListEnabled(ctx context.Context) ([]*User, error)
	SearchByName(ctx context.Context, name string) ([]*User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	CountByRole(ctx context.Context) ([]*RoleCount, error)
}

// TransactionManager 事务管理器，fn 内通过 ctx 传递事务句柄
type TransactionManager interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}
