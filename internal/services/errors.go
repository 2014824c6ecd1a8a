package services

import (
	"errors"

	"github.com/isdelr/student-records-be/internal/auth"
)

var (
	// ErrDuplicateUsername is returned when registering a taken username.
	ErrDuplicateUsername = errors.New("username already taken")
	// ErrInvalidCredentials covers both an unknown username and a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated wraps token failures and tokens for deleted users.
	ErrUnauthenticated = auth.ErrUnauthenticated
	ErrUserNotFound    = errors.New("user not found")
	ErrStudentNotFound = errors.New("student not found")
)
