package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/isdelr/student-records-be/internal/cache"
	"github.com/isdelr/student-records-be/internal/models"
	"github.com/rs/zerolog/log"
)

// DefaultStudentCacheTTL is how long a cached student snapshot stays valid.
const DefaultStudentCacheTTL = time.Hour

// StudentCacheKey returns the cache key of a student snapshot.
func StudentCacheKey(id int64) string {
	return fmt.Sprintf("student:%d", id)
}

// CachedStudentService wraps a StudentServiceProvider with a cache-aside
// read path for GetStudentByID. Updates and deletes drop the cached
// snapshot after the store write succeeds. A read that races with such a
// write can still repopulate the old snapshot, bounded by the TTL.
// Cache failures never fail a request; the store stays the source of truth.
type CachedStudentService struct {
	StudentServiceProvider
	cache cache.Cache
	ttl   time.Duration
}

// NewCachedStudentService creates a new CachedStudentService.
func NewCachedStudentService(base StudentServiceProvider, c cache.Cache, ttl time.Duration) *CachedStudentService {
	if ttl <= 0 {
		ttl = DefaultStudentCacheTTL
	}
	return &CachedStudentService{
		StudentServiceProvider: base,
		cache:                  c,
		ttl:                    ttl,
	}
}

// GetStudentByID returns the cached snapshot when present and otherwise
// reads through to the store and caches the result.
func (s *CachedStudentService) GetStudentByID(ctx context.Context, id int64) (models.Student, error) {
	key := StudentCacheKey(id)

	data, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		var student models.Student
		jsonErr := json.Unmarshal(data, &student)
		if jsonErr == nil {
			return student, nil
		}
		log.Warn().Err(jsonErr).Str("key", key).Msg("Dropping undecodable cache entry")
		s.invalidate(ctx, id)
	case !errors.Is(err, cache.ErrMiss):
		log.Warn().Err(err).Str("key", key).Msg("Cache read failed, falling back to store")
	}

	student, err := s.StudentServiceProvider.GetStudentByID(ctx, id)
	if err != nil {
		return models.Student{}, err
	}

	if data, err := json.Marshal(student); err != nil {
		log.Warn().Err(err).Int64("student_id", id).Msg("Failed to encode student for cache")
	} else if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Cache write failed")
	}
	return student, nil
}

// UpdateStudent updates the store and drops the cached snapshot.
func (s *CachedStudentService) UpdateStudent(ctx context.Context, id int64, patch models.StudentPatch) (models.Student, error) {
	student, err := s.StudentServiceProvider.UpdateStudent(ctx, id, patch)
	if err != nil {
		if errors.Is(err, ErrStudentNotFound) {
			s.invalidate(ctx, id)
		}
		return models.Student{}, err
	}
	s.invalidate(ctx, id)
	return student, nil
}

// DeleteStudent deletes from the store and drops the cached snapshot.
func (s *CachedStudentService) DeleteStudent(ctx context.Context, id int64) (bool, error) {
	deleted, err := s.StudentServiceProvider.DeleteStudent(ctx, id)
	if err != nil {
		return false, err
	}
	// Invalidate even when no row was deleted.
	s.invalidate(ctx, id)
	return deleted, nil
}

func (s *CachedStudentService) invalidate(ctx context.Context, id int64) {
	if err := s.cache.Delete(ctx, StudentCacheKey(id)); err != nil {
		log.Warn().Err(err).Int64("student_id", id).Msg("Failed to invalidate cached student")
	}
}
