package jobs

import (
	"fmt"

	"github.com/isdelr/student-records-be/internal/importer"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Scheduler triggers recurring background jobs on cron schedules.
type Scheduler struct {
	cron   *cron.Cron
	runner *Runner
}

// NewScheduler creates a scheduler that hands its jobs to runner.
func NewScheduler(runner *Runner) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		runner: runner,
	}
}

// ScheduleImport re-imports the CSV file at path on every tick of spec,
// a standard five-field cron expression.
func (s *Scheduler) ScheduleImport(spec string, store importer.StudentCreator, path string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	_, err := s.cron.AddFunc(spec, func() {
		jobID := s.runner.Submit("scheduled-import", ImportFile(store, path))
		log.Info().Str("job_id", jobID).Str("path", path).Msg("Scheduler: triggered student import")
	})
	return err
}

// Len returns the number of scheduled jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Run starts the scheduler in its own goroutine.
func (s *Scheduler) Run() {
	log.Info().Int("jobs", s.Len()).Msg("Starting background scheduler...")
	s.cron.Start()
}

// Stop halts the scheduler and waits for any trigger in progress.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Info().Msg("Stopped background scheduler.")
}
