// Package application 认证应用层
// 登录失败统一返回认证错误，不区分“用户不存在/密码错误/已停用”，避免账号探测。
package application

import (
	"context"
	"log/slog"

	"github.com/wyfcoding/kpstreasury/internal/apperror"
	"github.com/wyfcoding/kpstreasury/internal/events"
	userapp "github.com/wyfcoding/kpstreasury/internal/user/application"
	userdomain "github.com/wyfcoding/kpstreasury/internal/user/domain"
	"golang.org/x/crypto/bcrypt"
)

// AuthService 认证应用服务
type AuthService struct {
	users     userdomain.UserRepository
	userSvc   *userapp.UserService
	tokens    *TokenManager
	publisher *events.Publisher
	logger    *slog.Logger
}

// NewAuthService 创建认证应用服务
func NewAuthService(
	users userdomain.UserRepository,
	userSvc *userapp.UserService,
	tokens *TokenManager,
	publisher *events.Publisher,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		userSvc:   userSvc,
		tokens:    tokens,
		publisher: publisher,
		logger:    logger.With("module", "auth"),
	}
}

// Login 校验凭证并签发令牌
func (s *AuthService) Login(ctx context.Context, username, password string) (string, *userdomain.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return "", nil, err
	}
	if user == nil || !user.Enabled {
		s.logger.WarnContext(ctx, "login rejected", "username", username)
		return "", nil, apperror.Authentication("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		s.logger.WarnContext(ctx, "login rejected", "username", username)
		return "", nil, apperror.Authentication("invalid credentials")
	}

	token, err := s.tokens.Sign(user)
	if err != nil {
		return "", nil, err
	}

	s.publisher.Audit(ctx, events.AuditEvent{
		Envelope:    events.NewEnvelope(events.EventAuditAction),
		EntityType:  "user",
		EntityID:    user.Username,
		Action:      "LOGIN",
		PerformedBy: user.Username,
	})
	return token, user, nil
}

// RegisterCommand 自助注册命令
type RegisterCommand struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Register 自助注册，角色固定为 USER
func (s *AuthService) Register(ctx context.Context, cmd RegisterCommand) (*userdomain.User, error) {
	return s.userSvc.CreateUser(ctx, userapp.CreateUserCommand{
		Username:  cmd.Username,
		Password:  cmd.Password,
		Email:     cmd.Email,
		FirstName: cmd.FirstName,
		LastName:  cmd.LastName,
		Role:      userdomain.RoleUser,
	}, cmd.Username)
}

// Tokens 令牌管理器，供中间件使用
func (s *AuthService) Tokens() *TokenManager {
	return s.tokens
}
