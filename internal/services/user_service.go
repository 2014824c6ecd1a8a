package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/isdelr/student-records-be/internal/database"
	"github.com/isdelr/student-records-be/internal/models"
)

// UserServiceProvider defines the credential store used by the auth flow.
type UserServiceProvider interface {
	GetUserByID(ctx context.Context, id int64) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	CreateUser(ctx context.Context, username, passwordHash string) (models.User, error)
}

// UserService persists user identities and password hashes. It holds no
// auth logic: hashing and uniqueness checks belong to AuthService.
type UserService struct {
	db *sql.DB
}

// NewUserService creates a new UserService.
func NewUserService(db *sql.DB) *UserService {
	return &UserService{db: db}
}

// GetUserByID retrieves a single user by their ID, without the password hash.
func (s *UserService) GetUserByID(ctx context.Context, id int64) (models.User, error) {
	var user models.User
	row := s.db.QueryRowContext(ctx, "SELECT id, username, created_at FROM users WHERE id = ?", id)
	err := row.Scan(&user.ID, &user.Username, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, fmt.Errorf("user with ID %d: %w", id, ErrUserNotFound)
		}
		return models.User{}, err
	}
	return user, nil
}

// GetUserByUsername retrieves a single user by username, including the password hash.
func (s *UserService) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	var user models.User
	row := s.db.QueryRowContext(ctx, "SELECT id, username, password_hash, created_at FROM users WHERE username = ?", username)
	err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, fmt.Errorf("user %q: %w", username, ErrUserNotFound)
		}
		return models.User{}, err
	}
	return user, nil
}

// CreateUser inserts a new user. The UNIQUE index on username is the last
// line of defence when two registrations race past the lookup in
// AuthService.Register; that case surfaces as ErrDuplicateUsername.
func (s *UserService) CreateUser(ctx context.Context, username, passwordHash string) (models.User, error) {
	res, err := s.db.ExecContext(ctx, "INSERT INTO users(username, password_hash) VALUES(?, ?)", username, passwordHash)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return models.User{}, ErrDuplicateUsername
		}
		return models.User{}, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return models.User{}, err
	}
	return s.GetUserByID(ctx, id)
}
