package application

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/kpstreasury/internal/apperror"
	"github.com/wyfcoding/kpstreasury/internal/events"
	"github.com/wyfcoding/kpstreasury/internal/user/domain"
	"golang.org/x/crypto/bcrypt"
)

// fakeUserRepo 内存仓储
type fakeUserRepo struct {
	users  map[uint64]*domain.User
	nextID uint64
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uint64]*domain.User), nextID: 1}
}

func (r *fakeUserRepo) Save(_ context.Context, user *domain.User) error {
	if user.ID == 0 {
		user.ID = r.nextID
		r.nextID++
	}
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id uint64) (*domain.User, error) {
	user, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	copied := *user
	return &copied, nil
}

func (r *fakeUserRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	for _, user := range r.users {
		if user.Username == username {
			copied := *user
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, user := range r.users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) Delete(_ context.Context, id uint64) error {
	delete(r.users, id)
	return nil
}

func (r *fakeUserRepo) List(_ context.Context, _, _ int) ([]*domain.User, int64, error) {
	return nil, 0, nil
}

func (r *fakeUserRepo) ListByRole(_ context.Context, _ domain.Role) ([]*domain.User, error) {
	return nil, nil
}

func (r *fakeUserRepo) ListEnabled(_ context.Context) ([]*domain.User, error) {
	return nil, nil
}

func (r *fakeUserRepo) SearchByName(_ context.Context, _ string) ([]*domain.User, error) {
	return nil, nil
}

func (r *fakeUserRepo) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	user, _ := r.GetByUsername(ctx, username)
	return user != nil, nil
}

func (r *fakeUserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	user, _ := r.GetByEmail(ctx, email)
	return user != nil, nil
}

func (r *fakeUserRepo) CountByRole(_ context.Context) ([]*domain.RoleCount, error) {
	return nil, nil
}

// recordingMQ 记录全部发布调用
type recordingMQ struct {
	published []any
}

func (m *recordingMQ) Publish(_ context.Context, _ string, _ string, event any) error {
	m.published = append(m.published, event)
	return nil
}

func (m *recordingMQ) PublishInTx(ctx context.Context, _ any, topic string, key string, event any) error {
	return m.Publish(ctx, topic, key, event)
}

// fakeTxManager 直通事务管理器，记录开启次数
type fakeTxManager struct {
	calls int
}

func (m *fakeTxManager) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	return fn(ctx)
}

func newTestService(t *testing.T) (*UserService, *fakeUserRepo, *recordingMQ) {
	t.Helper()
	svc, repo, mq, _ := newTestServiceWithTx(t)
	return svc, repo, mq
}

func newTestServiceWithTx(t *testing.T) (*UserService, *fakeUserRepo, *recordingMQ, *fakeTxManager) {
	t.Helper()
	repo := newFakeUserRepo()
	mq := &recordingMQ{}
	tx := &fakeTxManager{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewUserService(repo, tx, events.NewPublisher(mq, logger), logger), repo, mq, tx
}

func createAlice(t *testing.T, svc *UserService) *domain.User {
	t.Helper()
	user, err := svc.CreateUser(context.Background(), CreateUserCommand{
		Username:  "alice",
		Password:  "Str0ngPass",
		Email:     "alice@example.com",
		FirstName: "Alice",
		LastName:  "Zhang",
		Role:      domain.RoleTreasuryManager,
	}, "admin")
	require.NoError(t, err)
	return user
}

func TestCreateUser(t *testing.T) {
	svc, repo, mq := newTestService(t)
	user := createAlice(t, svc)

	assert.NotZero(t, user.ID)
	assert.True(t, user.Enabled)

	// 密码以 bcrypt 散列存储，可反向校验
	stored := repo.users[user.ID]
	assert.NotEqual(t, "Str0ngPass", stored.Password)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte("Str0ngPass")))

	require.Len(t, mq.published, 1)
	ev, ok := mq.published[0].(events.UserEvent)
	require.True(t, ok)
	assert.Equal(t, events.EventUserCreated, ev.EventType)
}

func TestCreateUserDefaultsRole(t *testing.T) {
	svc, _, _ := newTestService(t)

	user, err := svc.CreateUser(context.Background(), CreateUserCommand{
		Username:  "bob",
		Password:  "Str0ngPass",
		Email:     "bob@example.com",
		FirstName: "Bob",
		LastName:  "Li",
	}, "admin")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, user.Role)
}

func TestCreateUserWeakPassword(t *testing.T) {
	svc, _, mq := newTestService(t)

	_, err := svc.CreateUser(context.Background(), CreateUserCommand{
		Username:  "bob",
		Password:  "weak",
		Email:     "bob@example.com",
		FirstName: "Bob",
		LastName:  "Li",
	}, "admin")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, apperror.HTTPStatus(err))
	assert.Empty(t, mq.published)
}

func TestCreateUserConflicts(t *testing.T) {
	svc, _, _ := newTestService(t)
	createAlice(t, svc)

	_, err := svc.CreateUser(context.Background(), CreateUserCommand{
		Username:  "alice",
		Password:  "Str0ngPass",
		Email:     "other@example.com",
		FirstName: "Other",
		LastName:  "User",
	}, "admin")
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, apperror.HTTPStatus(err))

	_, err = svc.CreateUser(context.Background(), CreateUserCommand{
		Username:  "alice2",
		Password:  "Str0ngPass",
		Email:     "alice@example.com",
		FirstName: "Other",
		LastName:  "User",
	}, "admin")
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, apperror.HTTPStatus(err))
}

func TestUpdateUserUniquenessOnlyOnChange(t *testing.T) {
	svc, _, _ := newTestService(t)
	alice := createAlice(t, svc)

	// 用户名和邮箱不变时不触发唯一性冲突
	updated, err := svc.UpdateUser(context.Background(), alice.ID, UpdateUserCommand{
		Username:  "alice",
		Email:     "alice@example.com",
		FirstName: "Alicia",
		LastName:  "Zhang",
		Role:      domain.RoleTreasuryManager,
	}, "admin")
	require.NoError(t, err)
	assert.Equal(t, "Alicia", updated.FirstName)
}

func TestEnableDisableUser(t *testing.T) {
	svc, repo, _ := newTestService(t)
	alice := createAlice(t, svc)

	_, err := svc.DisableUser(context.Background(), alice.ID, "admin")
	require.NoError(t, err)
	assert.False(t, repo.users[alice.ID].Enabled)

	_, err = svc.EnableUser(context.Background(), alice.ID, "admin")
	require.NoError(t, err)
	assert.True(t, repo.users[alice.ID].Enabled)
}

func TestChangePassword(t *testing.T) {
	svc, repo, _ := newTestService(t)
	alice := createAlice(t, svc)

	t.Run("wrong current password", func(t *testing.T) {
		err := svc.ChangePassword(context.Background(), alice.ID, "WrongPass1", "NewStr0ngPass")
		require.Error(t, err)
		assert.Equal(t, http.StatusUnauthorized, apperror.HTTPStatus(err))
	})

	t.Run("weak new password", func(t *testing.T) {
		err := svc.ChangePassword(context.Background(), alice.ID, "Str0ngPass", "weak")
		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, apperror.HTTPStatus(err))
	})

	t.Run("success", func(t *testing.T) {
		err := svc.ChangePassword(context.Background(), alice.ID, "Str0ngPass", "NewStr0ngPass1")
		require.NoError(t, err)
		stored := repo.users[alice.ID]
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte("NewStr0ngPass1")))
	})
}

func TestDeleteUserEmitsAudit(t *testing.T) {
	svc, repo, mq := newTestService(t)
	alice := createAlice(t, svc)
	mq.published = nil

	require.NoError(t, svc.DeleteUser(context.Background(), alice.ID, "admin"))
	assert.NotContains(t, repo.users, alice.ID)

	require.Len(t, mq.published, 2)
	_, isUserEvent := mq.published[0].(events.UserEvent)
	audit, isAudit := mq.published[1].(events.AuditEvent)
	assert.True(t, isUserEvent)
	require.True(t, isAudit)
	assert.Equal(t, "DELETE_USER", audit.Action)
}

func TestMutationsRunInTransaction(t *testing.T) {
	svc, _, _, tx := newTestServiceWithTx(t)
	alice := createAlice(t, svc)
	assert.Equal(t, 1, tx.calls)

	// 唯一性检查与写入共用同一事务，并发下冲突由数据库约束收敛为 409
	_, err := svc.UpdateUser(context.Background(), alice.ID, UpdateUserCommand{
		Username:  "alice",
		Email:     "alice@example.com",
		FirstName: "Alice",
		LastName:  "Zhang",
		Role:      domain.RoleTreasuryManager,
	}, "admin")
	require.NoError(t, err)
	assert.Equal(t, 2, tx.calls)

	_, err = svc.DisableUser(context.Background(), alice.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, 3, tx.calls)

	require.NoError(t, svc.ChangePassword(context.Background(), alice.ID, "Str0ngPass", "NewStr0ngPass1"))
	assert.Equal(t, 4, tx.calls)

	require.NoError(t, svc.DeleteUser(context.Background(), alice.ID, "admin"))
	assert.Equal(t, 5, tx.calls)
}

func TestAvailabilityChecks(t *testing.T) {
	svc, _, _ := newTestService(t)
	createAlice(t, svc)

	available, err := svc.IsUsernameAvailable(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, available)

	available, err = svc.IsEmailAvailable(context.Background(), "new@example.com")
	require.NoError(t, err)
	assert.True(t, available)
}
