// Package pipeline runs the document stages against the Project state
// machine and chains them through stage-completion events.
package pipeline

import (
	"context"
	"time"

	"github.com/Lllllllleong/catstoryflow/internal/models"
)

// RetryPolicy bounds one stage execution. Attempts run with their own
// timeout; the whole execution, backoff included, is cut off at Deadline.
type RetryPolicy struct {
	Attempts       uint
	AttemptTimeout time.Duration
	Deadline       time.Duration
	Delay          time.Duration
}

// Work performs the stage on a snapshot of the project and returns the
// fields to persist on success.
type Work func(ctx context.Context, p *models.Project) (models.Patch, error)

// Stage describes one unit of work. Status moves From -> Active when the
// stage starts and Active -> To when it succeeds.
type Stage struct {
	Name   models.StageName
	Title  string
	From   models.Status
	Active models.Status
	To     models.Status
	// Requires returns a reason when the project is not ready for the stage
	// despite being in From.
	Requires func(p *models.Project) string
	Policy   RetryPolicy
	Work     Work
	// Fail turns the final cause into the stage's typed error.
	Fail func(err error) error
	// Done reports whether the stage's result is already recorded on a
	// project that no run holds. Nil means the project is in To.
	Done func(p *models.Project) bool
}

func (s Stage) done(p *models.Project) bool {
	if s.Done != nil {
		return s.Done(p)
	}
	return p.Status == s.To
}

func (s Stage) failure(err error) error {
	if s.Fail == nil {
		return err
	}
	return s.Fail(err)
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Attempts == 0 {
		p.Attempts = 1
	}
	if p.AttemptTimeout <= 0 {
		p.AttemptTimeout = 5 * time.Minute
	}
	if p.Deadline <= 0 {
		p.Deadline = time.Duration(p.Attempts) * p.AttemptTimeout
	}
	if p.Delay <= 0 {
		p.Delay = time.Second
	}
	return p
}
