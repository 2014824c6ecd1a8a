package jobs

import (
	"context"
	"fmt"

	"github.com/isdelr/student-records-be/internal/importer"
	"github.com/rs/zerolog/log"
)

// StudentDeleter is the subset of the student store used by BatchDelete.
type StudentDeleter interface {
	DeleteStudent(ctx context.Context, id int64) (bool, error)
}

// BatchDelete deletes every id in order. Missing ids and failures are
// logged and skipped; there is no rollback of ids already deleted.
func BatchDelete(store StudentDeleter, ids []int64) Func {
	return func(ctx context.Context) error {
		var deleted, missing, failed int
		for _, id := range ids {
			if ctx.Err() != nil {
				return fmt.Errorf("batch delete interrupted after %d of %d ids: %w", deleted+missing+failed, len(ids), ctx.Err())
			}
			ok, err := store.DeleteStudent(ctx, id)
			switch {
			case err != nil:
				failed++
				log.Error().Err(err).Int64("student_id", id).Msg("Batch delete: failed to delete student")
			case !ok:
				missing++
				log.Warn().Int64("student_id", id).Msg("Batch delete: student not found")
			default:
				deleted++
			}
		}
		log.Info().Int("deleted", deleted).Int("missing", missing).Int("failed", failed).Msg("Batch delete complete")
		return nil
	}
}

// InsertRows inserts already parsed CSV rows.
func InsertRows(store importer.StudentCreator, rows []importer.Row) Func {
	return func(ctx context.Context) error {
		res := importer.Insert(ctx, store, rows)
		log.Info().Int("inserted", res.Inserted).Int("failed", len(res.Failed)).Msg("Student import complete")
		return nil
	}
}

// ImportFile parses and inserts the CSV file at path.
func ImportFile(store importer.StudentCreator, path string) Func {
	return func(ctx context.Context) error {
		res, err := importer.ImportFile(ctx, store, path)
		if err != nil {
			return err
		}
		log.Info().Str("path", path).Int("inserted", res.Inserted).Int("failed", len(res.Failed)).Msg("Student import complete")
		return nil
	}
}
