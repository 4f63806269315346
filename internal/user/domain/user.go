// Package domain 用户与角色领域模型
package domain

import (
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/wyfcoding/kpstreasury/internal/apperror"
)

// Role 系统角色，封闭枚举，权限判断只走能力方法
type Role string

const (
	RoleAdmin             Role = "ADMIN"
	RoleTreasuryManager   Role = "TREASURY_MANAGER"
	RoleTreasuryViewer    Role = "TREASURY_VIEWER"
	RoleCollateralManager Role = "COLLATERAL_MANAGER"
	RoleCollateralViewer  Role = "COLLATERAL_VIEWER"
	RoleUser              Role = "USER"
)

// Valid 是否为已知角色
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleTreasuryManager, RoleTreasuryViewer,
		RoleCollateralManager, RoleCollateralViewer, RoleUser:
		return true
	}
	return false
}

// CanManageUsers 用户管理权限
func (r Role) CanManageUsers() bool { return r == RoleAdmin }

// CanViewTreasury 司库账户只读权限
func (r Role) CanViewTreasury() bool {
	switch r {
	case RoleAdmin, RoleTreasuryManager, RoleTreasuryViewer:
		return true
	}
	return false
}

// CanManageTreasury 司库账户写权限
func (r Role) CanManageTreasury() bool {
	return r == RoleAdmin || r == RoleTreasuryManager
}

// CanViewCollateral 抵押品只读权限
func (r Role) CanViewCollateral() bool {
	switch r {
	case RoleAdmin, RoleCollateralManager, RoleCollateralViewer:
		return true
	}
	return false
}

// CanManageCollateral 抵押品写权限
func (r Role) CanManageCollateral() bool {
	return r == RoleAdmin || r == RoleCollateralManager
}

// User 用户聚合根
// Password 存 bcrypt 散列，永不序列化。
type User struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Username  string    `gorm:"column:username;type:varchar(50);uniqueIndex;not null" json:"username"`
	Password  string    `gorm:"column:password;type:varchar(100);not null" json:"-"`
	Email     string    `gorm:"column:email;type:varchar(100);uniqueIndex;not null" json:"email"`
	FirstName string    `gorm:"column:first_name;type:varchar(50);not null" json:"first_name"`
	LastName  string    `gorm:"column:last_name;type:varchar(50);not null" json:"last_name"`
	Role      Role      `gorm:"column:role;type:varchar(30);not null;default:'USER'" json:"role"`
	Enabled   bool      `gorm:"column:enabled;not null;default:true" json:"enabled"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// TableName 表名
func (User) TableName() string { return "users" }

// Validate 字段校验（不含密码，密码策略在 ValidatePasswordPolicy）
func (u *User) Validate() error {
	username := strings.TrimSpace(u.Username)
	if len(username) < 3 || len(username) > 50 {
		return apperror.Validation("username", "username must be between 3 and 50 characters")
	}
	if _, err := mail.ParseAddress(u.Email); err != nil {
		return apperror.Validation("email", "email format is invalid")
	}
	if len(u.Email) > 100 {
		return apperror.Validation("email", "email must not exceed 100 characters")
	}
	if strings.TrimSpace(u.FirstName) == "" {
		return apperror.Validation("first_name", "first name is required")
	}
	if strings.TrimSpace(u.LastName) == "" {
		return apperror.Validation("last_name", "last name is required")
	}
	if !u.Role.Valid() {
		return apperror.Validation("role", "unknown role")
	}
	return nil
}

// ValidatePasswordPolicy 明文密码策略：至少8位，含大写、小写、数字
func ValidatePasswordPolicy(password string) error {
	if len(password) < 8 {
		return apperror.Validation("password", "password must be at least 8 characters")
	}
	var hasUpper, hasLower, hasDigit bool
	for _, ch := range password {
		switch {
		case unicode.IsUpper(ch):
			hasUpper = true
		case unicode.IsLower(ch):
			hasLower = true
		case unicode.IsDigit(ch):
			hasDigit = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit {
		return apperror.Validation("password", "password must contain upper case, lower case and digit")
	}
	return nil
}

// Enable 启用用户
func (u *User) Enable() { u.Enabled = true }

// Disable 停用用户
func (u *User) Disable() { u.Enabled = false }

// FullName 姓名拼接，供通知与审计展示
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
