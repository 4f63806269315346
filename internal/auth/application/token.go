// Package application 令牌签发与校验
package application

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/wyfcoding/kpstreasury/internal/apperror"
	authdomain "github.com/wyfcoding/kpstreasury/internal/auth/domain"
	userdomain "github.com/wyfcoding/kpstreasury/internal/user/domain"
)

// TokenManager HS256 JWT 签发与校验
type TokenManager struct {
	secret []byte
	expiry time.Duration
}

// NewTokenManager 创建令牌管理器
func NewTokenManager(secret string, expiry time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), expiry: expiry}
}

// Sign 为用户签发访问令牌
func (m *TokenManager) Sign(user *userdomain.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      strconv.FormatUint(user.ID, 10),
		"username": user.Username,
		"email":    user.Email,
		"role":     string(user.Role),
		"iat":      now.Unix(),
		"exp":      now.Add(m.expiry).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Parse 校验令牌并还原安全主体
func (m *TokenManager) Parse(tokenString string) (*authdomain.Principal, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, apperror.Authentication("invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apperror.Authentication("invalid token claims")
	}

	sub, _ := claims["sub"].(string)
	userID, err := strconv.ParseUint(sub, 10, 64)
	if err != nil {
		return nil, apperror.Authentication("invalid token subject")
	}
	username, _ := claims["username"].(string)
	email, _ := claims["email"].(string)
	roleStr, _ := claims["role"].(string)
	role := userdomain.Role(roleStr)
	if !role.Valid() {
		return nil, apperror.Authentication("invalid token role")
	}

	return &authdomain.Principal{
		UserID:   userID,
		Username: username,
		Email:    email,
		Role:     role,
	}, nil
}
