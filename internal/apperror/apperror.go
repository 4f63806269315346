// Package apperror 业务错误分类
// 区分 NotFound / 校验失败 / 唯一性冲突 / 业务不变量违反 / 认证失败，
// 接口层据此映射 HTTP 状态码。
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// NotFoundError 实体不存在
type NotFoundError struct {
	Entity string
	Key    any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %v", e.Entity, e.Key)
}

// NotFound 构造实体不存在错误
func NotFound(entity string, key any) error {
	return &NotFoundError{Entity: entity, Key: key}
}

// ValidationError 字段级校验失败
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validation 构造字段校验错误
func Validation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// ConflictError 唯一键冲突（用户名、邮箱、账号等）
type ConflictError struct {
	Field string
	Value string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Field, e.Value)
}

// Conflict 构造唯一性冲突错误
func Conflict(field, value string) error {
	return &ConflictError{Field: field, Value: value}
}

// InvariantError 业务不变量违反（可用余额超总额、余额不足、账户非活跃等）
type InvariantError struct {
	Message string
}

func (e *InvariantError) Error() string { return e.Message }

// Invariant 构造不变量违反错误
func Invariant(message string) error {
	return &InvariantError{Message: message}
}

// AuthenticationError 认证失败，不泄露具体原因
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string { return e.Message }

// Authentication 构造认证失败错误
func Authentication(message string) error {
	return &AuthenticationError{Message: message}
}

// IsNotFound 判断是否实体不存在
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// HTTPStatus 错误到 HTTP 状态码的统一映射
func HTTPStatus(err error) int {
	var (
		notFound   *NotFoundError
		validation *ValidationError
		conflict   *ConflictError
		invariant  *InvariantError
		authErr    *AuthenticationError
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &invariant):
		return http.StatusBadRequest
	case errors.As(err, &authErr):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
