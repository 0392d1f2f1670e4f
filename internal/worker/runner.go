// Package worker drains the bulk validation queue.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"mailaudit/internal/apperr"
	"mailaudit/internal/models"
	"mailaudit/internal/queue"
)

type TaskSource interface {
	Pop(ctx context.Context, timeout time.Duration) (*queue.Task, error)
}

type ResultSink interface {
	SaveJobResult(ctx context.Context, jobID string, res models.ValidationResult) error
}

type EmailValidator interface {
	Validate(ctx context.Context, email string, checkSMTP bool) (models.ValidationResult, error)
}

// Runner pops one task at a time, validates it and stores the result.
type Runner struct {
	Tasks     TaskSource
	Results   ResultSink
	Validator EmailValidator

	TaskTimeout time.Duration
	PollTimeout time.Duration
	Backoff     time.Duration
}

func New(tasks TaskSource, results ResultSink, v EmailValidator) *Runner {
	return &Runner{
		Tasks:       tasks,
		Results:     results,
		Validator:   v,
		TaskTimeout: 60 * time.Second,
		PollTimeout: 5 * time.Second,
		Backoff:     time.Second,
	}
}

// Run blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	log.Info().Msg("👷 Worker started. Waiting for tasks...")
	for {
		if ctx.Err() != nil {
			log.Info().Msg("👷 Worker stopping")
			return nil
		}

		task, err := r.Tasks.Pop(ctx, r.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			if apperr.KindOf(err) == apperr.ParseError {
				log.Error().Err(err).Msg("❌ Dropping malformed task")
				continue
			}
			log.Error().Err(err).Msg("❌ Queue error")
			sleep(ctx, r.Backoff)
			continue
		}
		if task == nil {
			continue
		}

		r.Process(ctx, *task)
	}
}

// Process validates one task and records its result. Validation problems are
// part of the result; only a store failure is logged as an error.
func (r *Runner) Process(ctx context.Context, task queue.Task) {
	start := time.Now()

	vctx, cancel := context.WithTimeout(ctx, r.TaskTimeout)
	res, err := r.Validator.Validate(vctx, task.Email, true)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		// Timed out mid-pipeline: record whatever the stages produced.
		if res.Email == "" {
			res.Email = task.Email
		}
		if res.Message == "" {
			res.Message = "Validation timed out"
		}
		log.Warn().Err(err).Str("email", task.Email).Msg("⚠️  Validation did not finish")
	}

	if err := r.Results.SaveJobResult(ctx, task.JobID, res); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.Error().Err(err).Str("job_id", task.JobID).Str("email", task.Email).Msg("❌ Failed to save result")
		return
	}
	log.Info().
		Str("job_id", task.JobID).
		Str("email", task.Email).
		Bool("valid", res.IsValidSyntax && res.IsValidDNS).
		Dur("took", time.Since(start)).
		Msg("✅ Processed")
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
