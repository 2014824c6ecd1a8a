package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/isdelr/student-records-be/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// TokenIssuer issues and verifies bearer tokens.
type TokenIssuer interface {
	Issue(userID int64) (string, time.Time, error)
	Verify(token string) (int64, error)
}

// AccessToken is returned by a successful login.
type AccessToken struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"-"`
}

// AuthServiceProvider defines the interface for the registration and login flow.
type AuthServiceProvider interface {
	Register(ctx context.Context, username, password string) (models.User, error)
	Login(ctx context.Context, username, password string) (AccessToken, error)
	Authenticate(ctx context.Context, token string) (models.User, error)
}

// AuthService orchestrates registration, login and token authentication.
type AuthService struct {
	users      UserServiceProvider
	tokens     TokenIssuer
	bcryptCost int
	dummyHash  []byte
}

// NewAuthService creates a new AuthService. A zero cost means bcrypt.DefaultCost.
func NewAuthService(users UserServiceProvider, tokens TokenIssuer, bcryptCost int) *AuthService {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	// Compared against on unknown usernames so both failure paths cost one bcrypt check.
	dummy, _ := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcryptCost)
	return &AuthService{
		users:      users,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		dummyHash:  dummy,
	}
}

// Register creates a new user after checking the username is free.
//
// The lookup and the insert are not atomic. Two concurrent registrations
// of the same name can both pass the lookup; the UNIQUE index then rejects
// the second insert, which is reported as ErrDuplicateUsername as well.
func (s *AuthService) Register(ctx context.Context, username, password string) (models.User, error) {
	creds := models.Credentials{Username: username, Password: password}
	if err := creds.Validate(); err != nil {
		return models.User{}, err
	}

	_, err := s.users.GetUserByUsername(ctx, username)
	if err == nil {
		return models.User{}, ErrDuplicateUsername
	}
	if !errors.Is(err, ErrUserNotFound) {
		return models.User{}, fmt.Errorf("failed to look up username: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.users.CreateUser(ctx, username, string(hash))
	if err != nil {
		return models.User{}, err
	}
	user.PasswordHash = ""
	return user, nil
}

// Login verifies the credentials and issues an access token. Unknown
// usernames and wrong passwords both yield ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, username, password string) (AccessToken, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return AccessToken{}, fmt.Errorf("failed to look up user: %w", err)
		}
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return AccessToken{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return AccessToken{}, ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Issue(user.ID)
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{AccessToken: token, TokenType: "bearer", ExpiresAt: expiresAt}, nil
}

// Authenticate verifies the token and re-resolves the user it names.
func (s *AuthService) Authenticate(ctx context.Context, token string) (models.User, error) {
	userID, err := s.tokens.Verify(token)
	if err != nil {
		return models.User{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return models.User{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
		}
		return models.User{}, err
	}
	return user, nil
}
