package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gotest.tools/v3/assert"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func newTestService(c *clock) *TokenService {
	s := NewTokenService("test-secret", 30*time.Minute)
	s.now = c.Now
	return s
}

func TestIssueAndVerify(t *testing.T) {
	c := &clock{t: time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)}
	s := newTestService(c)

	token, expiresAt, err := s.Issue(42)
	assert.NilError(t, err)
	assert.Equal(t, expiresAt, c.t.Add(30*time.Minute))

	c.t = c.t.Add(29 * time.Minute)
	userID, err := s.Verify(token)
	assert.NilError(t, err)
	assert.Equal(t, userID, int64(42))
}

func TestVerifyExpired(t *testing.T) {
	c := &clock{t: time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)}
	s := newTestService(c)

	token, _, err := s.Issue(1)
	assert.NilError(t, err)

	c.t = c.t.Add(31 * time.Minute)
	_, err = s.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestVerifyRejectsTampering(t *testing.T) {
	c := &clock{t: time.Now()}
	s := newTestService(c)

	token, _, err := s.Issue(1)
	assert.NilError(t, err)

	other := NewTokenService("another-secret", time.Minute)
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = s.Verify(token + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = s.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	s := newTestService(&clock{t: time.Now()})

	claims := jwt.RegisteredClaims{
		Subject:   "1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	assert.NilError(t, err)

	_, err = s.Verify(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRequiresNumericSubject(t *testing.T) {
	s := newTestService(&clock{t: time.Now()})

	claims := jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	assert.NilError(t, err)

	_, err = s.Verify(signed)
	assert.Assert(t, errors.Is(err, ErrInvalidToken))
}

func TestVerifyRequiresExpiry(t *testing.T) {
	s := newTestService(&clock{t: time.Now()})

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "1"}).SignedString([]byte("test-secret"))
	assert.NilError(t, err)

	_, err = s.Verify(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
