package credentials

import (
	"context"
	"errors"
	"testing"

	"github.com/coinkrazygaming/coinkrazy2-sub002/models"
	"github.com/coinkrazygaming/coinkrazy2-sub002/repositories"
	"github.com/coinkrazygaming/coinkrazy2-sub002/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// MockUserRepository is a mock implementation of UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	if args.Error(0) == nil {
		user.ID = 100
	}
	return args.Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(ctx, id)
	if user := args.Get(0); user != nil {
		return user.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	if user := args.Get(0); user != nil {
		return user.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if user := args.Get(0); user != nil {
		return user.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	args := m.Called(ctx, limit, offset)
	if users := args.Get(0); users != nil {
		return users.([]*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepository) UpdateRoles(ctx context.Context, id int64, isAdmin, isStaff bool) (*models.User, error) {
	args := m.Called(ctx, id, isAdmin, isStaff)
	if user := args.Get(0); user != nil {
		return user.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockIdentityRepository is a mock implementation of IdentityRepository
type MockIdentityRepository struct {
	mock.Mock
}

func (m *MockIdentityRepository) Get(ctx context.Context, provider, providerUserID string) (*models.OAuthIdentity, error) {
	args := m.Called(ctx, provider, providerUserID)
	if identity := args.Get(0); identity != nil {
		return identity.(*models.OAuthIdentity), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockIdentityRepository) Link(ctx context.Context, identity *models.OAuthIdentity) error {
	args := m.Called(ctx, identity)
	return args.Error(0)
}

func (m *MockIdentityRepository) ListByUser(ctx context.Context, userID int64) ([]*models.OAuthIdentity, error) {
	args := m.Called(ctx, userID)
	if identities := args.Get(0); identities != nil {
		return identities.([]*models.OAuthIdentity), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockTransactionManager runs the function inline
type MockTransactionManager struct {
	mock.Mock
}

func (m *MockTransactionManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	args := m.Called(ctx)
	return nil, args.Error(1)
}

func (m *MockTransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	m.Called(ctx)
	return fn(ctx, nil)
}

type fixture struct {
	users      *MockUserRepository
	identities *MockIdentityRepository
	tx         *MockTransactionManager
	verifier   *Verifier
}

func newFixture() *fixture {
	f := &fixture{
		users:      new(MockUserRepository),
		identities: new(MockIdentityRepository),
		tx:         new(MockTransactionManager),
	}
	f.tx.On("InTransaction", mock.Anything).Maybe()
	f.verifier = NewVerifier(f.users, f.identities, f.tx, zap.NewNop(), WithBcryptCost(bcrypt.MinCost))
	return f
}

func userWithPassword(t *testing.T, password string) *models.User {
	t.Helper()
	hash, err := HashPassword(password, bcrypt.MinCost)
	require.NoError(t, err)
	user := models.NewUser("alice", "alice@example.com", &hash)
	user.ID = 1
	return user
}

func TestVerifyPassword(t *testing.T) {
	ctx := context.Background()

	t.Run("username lookup", func(t *testing.T) {
		f := newFixture()
		f.users.On("GetByUsername", ctx, "alice").Return(userWithPassword(t, "s3cret-pass"), nil)

		user, err := f.verifier.VerifyPassword(ctx, "alice", "s3cret-pass")

		require.NoError(t, err)
		assert.Equal(t, int64(1), user.ID)
		f.users.AssertNotCalled(t, "GetByEmail", mock.Anything, mock.Anything)
	})

	t.Run("email lookup", func(t *testing.T) {
		f := newFixture()
		f.users.On("GetByEmail", ctx, "alice@example.com").Return(userWithPassword(t, "s3cret-pass"), nil)

		user, err := f.verifier.VerifyPassword(ctx, " alice@example.com ", "s3cret-pass")

		require.NoError(t, err)
		assert.Equal(t, "alice", user.Username)
	})

	t.Run("wrong password", func(t *testing.T) {
		f := newFixture()
		f.users.On("GetByUsername", ctx, "alice").Return(userWithPassword(t, "s3cret-pass"), nil)

		user, err := f.verifier.VerifyPassword(ctx, "alice", "wrong")

		assert.Nil(t, user)
		assert.ErrorIs(t, err, services.ErrBadCredentials)
	})

	t.Run("unknown user", func(t *testing.T) {
		f := newFixture()
		f.users.On("GetByUsername", ctx, "ghost").Return(nil, services.ErrUserNotFound)

		_, err := f.verifier.VerifyPassword(ctx, "ghost", "whatever")

		assert.ErrorIs(t, err, services.ErrUserNotFound)
		assert.True(t, services.IsCredentialError(err))
		assert.NotNil(t, f.verifier.dummyHash, "miss path must still run a bcrypt comparison")
	})

	t.Run("oauth only account", func(t *testing.T) {
		f := newFixture()
		user := models.NewUser("bob", "bob@example.com", nil)
		f.users.On("GetByUsername", ctx, "bob").Return(user, nil)

		_, err := f.verifier.VerifyPassword(ctx, "bob", "anything")

		assert.ErrorIs(t, err, services.ErrBadCredentials)
	})

	t.Run("store failure", func(t *testing.T) {
		f := newFixture()
		f.users.On("GetByUsername", ctx, "alice").Return(nil, errors.New("connection reset"))

		_, err := f.verifier.VerifyPassword(ctx, "alice", "s3cret-pass")

		assert.True(t, services.IsInternalError(err))
		assert.False(t, services.IsCredentialError(err))
	})
}

func TestRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("hashes password", func(t *testing.T) {
		f := newFixture()
		f.users.On("Create", ctx, mock.AnythingOfType("*models.User")).Return(nil)

		user, err := f.verifier.Register(ctx, RegisterInput{Username: "carol", Email: "carol@example.com", Password: "pa55word!"})

		require.NoError(t, err)
		assert.Equal(t, int64(100), user.ID)
		require.True(t, user.HasPassword())
		assert.NotEqual(t, "pa55word!", *user.PasswordHash)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte("pa55word!")))
		assert.False(t, user.IsAdmin)
		assert.False(t, user.IsStaff)
	})

	t.Run("duplicate", func(t *testing.T) {
		f := newFixture()
		f.users.On("Create", ctx, mock.Anything).Return(services.ErrDuplicateEmail)

		_, err := f.verifier.Register(ctx, RegisterInput{Username: "carol", Email: "carol@example.com", Password: "pa55word!"})

		assert.ErrorIs(t, err, services.ErrDuplicateEmail)
	})
}

func TestVerifyOAuthIdentity_ExistingLink(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	linked := &models.User{ID: 5, Username: "dave"}

	f.identities.On("Get", ctx, "google", "g-5").Return(&models.OAuthIdentity{Provider: "google", ProviderUserID: "g-5", UserID: 5}, nil)
	f.users.On("GetByID", ctx, int64(5)).Return(linked, nil)

	user, err := f.verifier.VerifyOAuthIdentity(ctx, "google", "g-5", models.OAuthProfile{ProviderUserID: "g-5"})

	require.NoError(t, err)
	assert.Same(t, linked, user)
	f.identities.AssertNotCalled(t, "Link", mock.Anything, mock.Anything)
}

func TestVerifyOAuthIdentity_ProvisionsNewUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	f.identities.On("Get", ctx, "google", "g-9").Return(nil, services.ErrUserNotFound)
	f.users.On("GetByUsername", ctx, "erin_smith").Return(&models.User{ID: 2}, nil).Once()
	f.users.On("GetByUsername", ctx, "erin_smith2").Return(nil, services.ErrUserNotFound).Once()
	f.users.On("Create", ctx, mock.MatchedBy(func(u *models.User) bool {
		return u.Username == "erin_smith2" && u.Email == "erin@example.com" && !u.HasPassword()
	})).Return(nil)
	f.identities.On("Link", ctx, mock.MatchedBy(func(i *models.OAuthIdentity) bool {
		return i.Provider == "google" && i.ProviderUserID == "g-9" && i.UserID == 100
	})).Return(nil)

	user, err := f.verifier.VerifyOAuthIdentity(ctx, "google", "g-9", models.OAuthProfile{
		ProviderUserID: "g-9",
		Email:          "erin@example.com",
		DisplayName:    "Erin Smith",
	})

	require.NoError(t, err)
	assert.Equal(t, int64(100), user.ID)
	f.tx.AssertCalled(t, "InTransaction", ctx)
	f.users.AssertExpectations(t)
	f.identities.AssertExpectations(t)
}

func TestVerifyOAuthIdentity_LinksRequestedUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	linkTo := int64(3)
	existing := &models.User{ID: 3, Username: "frank"}

	f.identities.On("Get", ctx, "facebook", "fb-1").Return(nil, services.ErrUserNotFound)
	f.users.On("GetByID", ctx, int64(3)).Return(existing, nil)
	f.identities.On("Link", ctx, mock.MatchedBy(func(i *models.OAuthIdentity) bool { return i.UserID == 3 })).Return(nil)

	user, err := f.verifier.VerifyOAuthIdentity(ctx, "facebook", "fb-1", models.OAuthProfile{ProviderUserID: "fb-1", LinkUserID: &linkTo})

	require.NoError(t, err)
	assert.Same(t, existing, user)
	f.users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestVerifyOAuthIdentity_ProviderMismatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	linkTo := int64(3)

	f.identities.On("Get", ctx, "google", "g-7").Return(&models.OAuthIdentity{Provider: "google", ProviderUserID: "g-7", UserID: 8}, nil)

	user, err := f.verifier.VerifyOAuthIdentity(ctx, "google", "g-7", models.OAuthProfile{ProviderUserID: "g-7", LinkUserID: &linkTo})

	assert.Nil(t, user)
	assert.ErrorIs(t, err, services.ErrProviderMismatch)
	f.users.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestVerifyOAuthIdentity_ConcurrentFirstSignIn(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	winner := &models.User{ID: 12, Username: "gina"}

	f.identities.On("Get", ctx, "google", "g-12").Return(nil, services.ErrUserNotFound).Once()
	f.users.On("GetByUsername", ctx, "gina").Return(nil, services.ErrUserNotFound)
	f.users.On("Create", ctx, mock.Anything).Return(nil)
	f.identities.On("Link", ctx, mock.Anything).Return(services.ErrDuplicateIdentity)
	f.identities.On("Get", ctx, "google", "g-12").Return(&models.OAuthIdentity{UserID: 12}, nil).Once()
	f.users.On("GetByID", ctx, int64(12)).Return(winner, nil)

	user, err := f.verifier.VerifyOAuthIdentity(ctx, "google", "g-12", models.OAuthProfile{ProviderUserID: "g-12", DisplayName: "Gina"})

	require.NoError(t, err)
	assert.Same(t, winner, user)
}

func TestVerifyOAuthIdentity_ProvisionConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"email taken by a local account", services.ErrDuplicateEmail},
		{"username taken concurrently", services.ErrDuplicateUsername},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture()

			f.identities.On("Get", ctx, "google", "g-9").Return(nil, services.ErrUserNotFound)
			f.users.On("GetByUsername", ctx, "bob").Return(nil, services.ErrUserNotFound)
			f.users.On("Create", ctx, mock.Anything).Return(tt.err)

			user, err := f.verifier.VerifyOAuthIdentity(ctx, "google", "g-9", models.OAuthProfile{ProviderUserID: "g-9", Email: "bob@example.com"})

			assert.Nil(t, user)
			assert.True(t, services.IsConflictError(err), "got %v", err)
			assert.False(t, services.IsNotFoundError(err))
			f.identities.AssertNumberOfCalls(t, "Get", 1)
			f.identities.AssertNotCalled(t, "Link", mock.Anything, mock.Anything)
		})
	}
}

func TestVerifyOAuthIdentity_InvalidInput(t *testing.T) {
	f := newFixture()

	_, err := f.verifier.VerifyOAuthIdentity(context.Background(), "google", "", models.OAuthProfile{})

	assert.True(t, services.IsValidationError(err))
}

func TestDeriveUsername(t *testing.T) {
	tests := []struct {
		name    string
		profile models.OAuthProfile
		want    string
	}{
		{"display name", models.OAuthProfile{DisplayName: "Jane Doe"}, "jane_doe"},
		{"strips symbols", models.OAuthProfile{DisplayName: "J@ne!!"}, "jne"},
		{"falls back to email", models.OAuthProfile{DisplayName: "Zoë", Email: "zoe.k@example.com"}, "zoe_k"},
		{"falls back to provider", models.OAuthProfile{}, "google_user"},
		{"truncates", models.OAuthProfile{DisplayName: "abcdefghijklmnopqrstuvwxyz0123456789"}, "abcdefghijklmnopqrstuvwxyz012345"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveUsername("google", tt.profile))
		})
	}
}
