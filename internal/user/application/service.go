// Package application 用户应用层
// 每个变更操作在单一数据库事务内完成（唯一性检查与写入共用事务），
// 事件只在事务提交后发布。
package application

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/wyfcoding/kpstreasury/internal/apperror"
	"github.com/wyfcoding/kpstreasury/internal/events"
	"github.com/wyfcoding/kpstreasury/internal/user/domain"
	"golang.org/x/crypto/bcrypt"
)

// UserService 用户应用服务
type UserService struct {
	repo      domain.UserRepository
	txManager domain.TransactionManager
	publisher *events.Publisher
	logger    *slog.Logger
}

// NewUserService 创建用户应用服务
func NewUserService(
	repo domain.UserRepository,
	txManager domain.TransactionManager,
	publisher *events.Publisher,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		repo:      repo,
		txManager: txManager,
		publisher: publisher,
		logger:    logger.With("module", "user"),
	}
}

// CreateUserCommand 创建用户命令
type CreateUserCommand struct {
	Username  string      `json:"username"`
	Password  string      `json:"password"`
	Email     string      `json:"email"`
	FirstName string      `json:"first_name"`
	LastName  string      `json:"last_name"`
	Role      domain.Role `json:"role"`
}

// CreateUser 创建用户：密码策略、用户名与邮箱唯一、bcrypt 散列
func (s *UserService) CreateUser(ctx context.Context, cmd CreateUserCommand, performedBy string) (*domain.User, error) {
	user := &domain.User{
		Username:  cmd.Username,
		Email:     cmd.Email,
		FirstName: cmd.FirstName,
		LastName:  cmd.LastName,
		Role:      cmd.Role,
		Enabled:   true,
	}
	if user.Role == "" {
		user.Role = domain.RoleUser
	}
	if err := user.Validate(); err != nil {
		return nil, err
	}
	if err := domain.ValidatePasswordPolicy(cmd.Password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cmd.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user.Password = string(hash)

	err = s.txManager.Transaction(ctx, func(ctx context.Context) error {
		if taken, err := s.repo.ExistsByUsername(ctx, cmd.Username); err != nil {
			return err
		} else if taken {
			return apperror.Conflict("username", cmd.Username)
		}
		if taken, err := s.repo.ExistsByEmail(ctx, cmd.Email); err != nil {
			return err
		} else if taken {
			return apperror.Conflict("email", cmd.Email)
		}
		return s.repo.Save(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.User(ctx, events.UserEvent{
		Envelope:    events.NewEnvelope(events.EventUserCreated),
		UserID:      user.ID,
		Username:    user.Username,
		Email:       user.Email,
		Role:        string(user.Role),
		PerformedBy: performedBy,
	})
	s.logger.InfoContext(ctx, "user created", "user_id", user.ID, "username", user.Username)
	return user, nil
}

// GetUser 按 ID 查询
func (s *UserService) GetUser(ctx context.Context, id uint64) (*domain.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperror.NotFound("user", id)
	}
	return user, nil
}

// GetUserByUsername 按用户名查询
func (s *UserService) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperror.NotFound("user", username)
	}
	return user, nil
}

// GetUserByEmail 按邮箱查询
func (s *UserService) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperror.NotFound("user", email)
	}
	return user, nil
}

// ListUsers 分页列表
func (s *UserService) ListUsers(ctx context.Context, offset, limit int) ([]*domain.User, int64, error) {
	return s.repo.List(ctx, offset, limit)
}

// ListByRole 按角色查询
func (s *UserService) ListByRole(ctx context.Context, role domain.Role) ([]*domain.User, error) {
	if !role.Valid() {
		return nil, apperror.Validation("role", "unknown role")
	}
	return s.repo.ListByRole(ctx, role)
}

// ListEnabled 启用用户列表
func (s *UserService) ListEnabled(ctx context.Context) ([]*domain.User, error) {
	return s.repo.ListEnabled(ctx)
}

// SearchByName 按姓名模糊检索
func (s *UserService) SearchByName(ctx context.Context, name string) ([]*domain.User, error) {
	return s.repo.SearchByName(ctx, name)
}

// UpdateUserCommand 更新用户命令
type UpdateUserCommand struct {
	Username  string      `json:"username"`
	Email     string      `json:"email"`
	FirstName string      `json:"first_name"`
	LastName  string      `json:"last_name"`
	Role      domain.Role `json:"role"`
}

// UpdateUser 更新用户；用户名或邮箱变更时重查唯一性
func (s *UserService) UpdateUser(ctx context.Context, id uint64, cmd UpdateUserCommand, performedBy string) (*domain.User, error) {
	var user *domain.User
	err := s.txManager.Transaction(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if user == nil {
			return apperror.NotFound("user", id)
		}

		if cmd.Username != user.Username {
			if taken, err := s.repo.ExistsByUsername(ctx, cmd.Username); err != nil {
				return err
			} else if taken {
				return apperror.Conflict("username", cmd.Username)
			}
		}
		if cmd.Email != user.Email {
			if taken, err := s.repo.ExistsByEmail(ctx, cmd.Email); err != nil {
				return err
			} else if taken {
				return apperror.Conflict("email", cmd.Email)
			}
		}

		user.Username = cmd.Username
		user.Email = cmd.Email
		user.FirstName = cmd.FirstName
		user.LastName = cmd.LastName
		user.Role = cmd.Role
		if err := user.Validate(); err != nil {
			return err
		}
		return s.repo.Save(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.User(ctx, events.UserEvent{
		Envelope:    events.NewEnvelope(events.EventUserUpdated),
		UserID:      user.ID,
		Username:    user.Username,
		Email:       user.Email,
		Role:        string(user.Role),
		PerformedBy: performedBy,
	})
	return user, nil
}

// EnableUser 启用用户
func (s *UserService) EnableUser(ctx context.Context, id uint64, performedBy string) (*domain.User, error) {
	return s.setEnabled(ctx, id, true, performedBy)
}

// DisableUser 停用用户
func (s *UserService) DisableUser(ctx context.Context, id uint64, performedBy string) (*domain.User, error) {
	return s.setEnabled(ctx, id, false, performedBy)
}

func (s *UserService) setEnabled(ctx context.Context, id uint64, enabled bool, performedBy string) (*domain.User, error) {
	var user *domain.User
	err := s.txManager.Transaction(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if user == nil {
			return apperror.NotFound("user", id)
		}
		if enabled {
			user.Enable()
		} else {
			user.Disable()
		}
		return s.repo.Save(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	eventType := events.EventUserDisabled
	if enabled {
		eventType = events.EventUserEnabled
	}
	s.publisher.User(ctx, events.UserEvent{
		Envelope:    events.NewEnvelope(eventType),
		UserID:      user.ID,
		Username:    user.Username,
		PerformedBy: performedBy,
	})
	return user, nil
}

// DeleteUser 删除用户（物理删除，仅管理员）
func (s *UserService) DeleteUser(ctx context.Context, id uint64, performedBy string) error {
	var user *domain.User
	err := s.txManager.Transaction(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if user == nil {
			return apperror.NotFound("user", id)
		}
		return s.repo.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.publisher.User(ctx, events.UserEvent{
		Envelope:    events.NewEnvelope(events.EventUserDeleted),
		UserID:      id,
		Username:    user.Username,
		PerformedBy: performedBy,
	})
	s.publisher.Audit(ctx, events.AuditEvent{
		Envelope:    events.NewEnvelope(events.EventAuditAction),
		EntityType:  "user",
		EntityID:    strconv.FormatUint(id, 10),
		Action:      "DELETE_USER",
		PerformedBy: performedBy,
	})
	s.logger.InfoContext(ctx, "user deleted", "user_id", id, "username", user.Username)
	return nil
}

// ChangePassword 修改密码：校验旧密码，新密码走策略后重新散列
func (s *UserService) ChangePassword(ctx context.Context, id uint64, oldPassword, newPassword string) error {
	var user *domain.User
	err := s.txManager.Transaction(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if user == nil {
			return apperror.NotFound("user", id)
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(oldPassword)); err != nil {
			return apperror.Authentication("current password is incorrect")
		}
		if err := domain.ValidatePasswordPolicy(newPassword); err != nil {
			return err
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		user.Password = string(hash)
		return s.repo.Save(ctx, user)
	})
	if err != nil {
		return err
	}

	s.publisher.User(ctx, events.UserEvent{
		Envelope: events.NewEnvelope(events.EventUserPasswordChanged),
		UserID:   user.ID,
		Username: user.Username,
	})
	return nil
}

// IsUsernameAvailable 用户名可用性检查
func (s *UserService) IsUsernameAvailable(ctx context.Context, username string) (bool, error) {
	taken, err := s.repo.ExistsByUsername(ctx, username)
	if err != nil {
		return false, err
	}
	return !taken, nil
}

// IsEmailAvailable 邮箱可用性检查
func (s *UserService) IsEmailAvailable(ctx context.Context, email string) (bool, error) {
	taken, err := s.repo.ExistsByEmail(ctx, email)
	if err != nil {
		return false, err
	}
	return !taken, nil
}

// CountByRole 按角色统计用户数
func (s *UserService) CountByRole(ctx context.Context) ([]*domain.RoleCount, error) {
	return s.repo.CountByRole(ctx)
}
