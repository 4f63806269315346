// Package mysql 用户 MySQL 仓储实现
// 统一通过 contextx 获取事务句柄，唯一性检查与写入可共用一个事务。
package mysql

import (
	"context"
	"errors"

	"github.com/wyfcoding/kpstreasury/internal/user/domain"
	"github.com/wyfcoding/pkg/contextx"
	"gorm.io/gorm"
)

// baseRepository 基础仓储，提供事务支持
type baseRepository struct {
	db *gorm.DB
}

func (r *baseRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return r.db
}

// TransactionManager 事务管理器
type TransactionManager struct {
	db *gorm.DB
}

func NewTransactionManager(db *gorm.DB) *TransactionManager {
	return &TransactionManager{db: db}
}

// Transaction 开启一个新事务，事务句柄经 ctx 下传
func (tm *TransactionManager) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return tm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(contextx.WithTx(ctx, tx))
	})
}

type userRepository struct {
	baseRepository
}

func NewUserRepository(db *gorm.DB) domain.UserRepository {
	return &userRepository{baseRepository{db: db}}
}

func (r *userRepository) Save(ctx context.Context, user *domain.User) error {
	return r.getDB(ctx).WithContext(ctx).Save(user).Error
}

func (r *userRepository) GetByID(ctx context.Context, id uint64) (*domain.User, error) {
	var u domain.User
	if err := r.getDB(ctx).WithContext(ctx).First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	var u domain.User
	if err := r.getDB(ctx).WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	if err := r.getDB(ctx).WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) Delete(ctx context.Context, id uint64) error {
	return r.getDB(ctx).WithContext(ctx).Delete(&domain.User{}, id).Error
}

func (r *userRepository) List(ctx context.Context, offset, limit int) ([]*domain.User, int64, error) {
	query := r.getDB(ctx).WithContext(ctx).Model(&domain.User{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var users []*domain.User
	if err := query.Order("id ASC").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *userRepository) ListByRole(ctx context.Context, role domain.Role) ([]*domain.User, error) {
	var users []*domain.User
	if err := r.getDB(ctx).WithContext(ctx).Where("role = ?", role).Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (r *userRepository) ListEnabled(ctx context.Context) ([]*domain.User, error) {
	var users []*domain.User
	if err := r.getDB(ctx).WithContext(ctx).Where("enabled = ?", true).Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (r *userRepository) SearchByName(ctx context.Context, name string) ([]*domain.User, error) {
	var users []*domain.User
	pattern := "%" + name + "%"
	err := r.getDB(ctx).WithContext(ctx).
		Where("first_name LIKE ? OR last_name LIKE ?", pattern, pattern).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (r *userRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var count int64
	err := r.getDB(ctx).WithContext(ctx).Model(&domain.User{}).Where("username = ?", username).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *userRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.getDB(ctx).WithContext(ctx).Model(&domain.User{}).Where("email = ?", email).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *userRepository) CountByRole(ctx context.Context) ([]*domain.RoleCount, error) {
	var counts []*domain.RoleCount
	err := r.getDB(ctx).WithContext(ctx).Model(&domain.User{}).
		Select("role, COUNT(*) AS count").
		Group("role").
		Order("role ASC").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
}
