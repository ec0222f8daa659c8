// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a named periodic task. An empty Schedule disables it.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// Entry describes a registered job.
type Entry struct {
	Name string    `json:"name"`
	Next time.Time `json:"next"`
}

// Scheduler fires jobs on their cron schedules. A job still running when
// its next tick arrives is skipped for that tick.
type Scheduler struct {
	jobs []Job
	cron *cron.Cron

	mu      sync.Mutex
	entries map[cron.EntryID]string
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Validate reports whether spec is a schedule Start would accept. The
// empty spec is valid and means disabled.
func Validate(spec string) error {
	if spec == "" {
		return nil
	}
	_, err := cronParser.Parse(spec)
	return err
}

// New creates a Scheduler for the given jobs.
func New(jobs ...Job) *Scheduler {
	return &Scheduler{
		jobs: jobs,
		cron: newCron(),
	}
}

func newCron() *cron.Cron {
	return cron.New(
		cron.WithParser(cronParser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
}

// Start registers every job that has a schedule and starts the cron
// ticker. Jobs run with ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.entries = make(map[cron.EntryID]string)
	s.mu.Unlock()

	for _, job := range s.jobs {
		if job.Schedule == "" {
			continue
		}

		job := job
		id, err := s.cron.AddFunc(job.Schedule, func() {
			slog.Debug("cron firing job", "name", job.Name)
			if err := job.Run(ctx); err != nil {
				slog.Warn("scheduled job failed", "name", job.Name, "error", err)
			}
		})
		if err != nil {
			slog.Error("invalid cron schedule", "name", job.Name, "schedule", job.Schedule, "error", err)
			continue
		}
		s.mu.Lock()
		s.entries[id] = job.Name
		s.mu.Unlock()
		slog.Info("scheduled job", "name", job.Name, "schedule", job.Schedule)
	}

	s.cron.Start()
	return nil
}

// Reload stops the existing cron, creates a new one, and calls Start() again.
func (s *Scheduler) Reload(ctx context.Context) error {
	s.Stop()
	s.cron = newCron()
	return s.Start(ctx)
}

// Stop stops the cron ticker and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Entries lists registered jobs with their next run time.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entry
	for _, e := range s.cron.Entries() {
		out = append(out, Entry{Name: s.entries[e.ID], Next: e.Next})
	}
	return out
}
