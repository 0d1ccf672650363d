// Package store persists Project records. Every status change is a
// compare-and-set on the current status. Stage runs additionally take a
// lease with Claim and give it back with Release, so two runs can never
// act on the same project even when a stage starts and works in the same
// status.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/Lllllllleong/catstoryflow/internal/models"
)

var (
	ErrNotFound       = errors.New("project not found")
	ErrStatusConflict = errors.New("project status conflict")
)

// ConflictError reports the status a project actually had when a
// Transition's expected status did not match.
// RunID is set when the conflict is a lease held by another run.
type ConflictError struct {
	ProjectID string
	Got       models.Status
	Want      []models.Status
	RunID     string
}

func (e *ConflictError) Error() string {
	if e.RunID != "" {
		return fmt.Sprintf("project %s is %s with run %s in flight", e.ProjectID, e.Got, e.RunID)
	}
	return fmt.Sprintf("project %s is %s, want one of %v", e.ProjectID, e.Got, e.Want)
}

func (e *ConflictError) Is(target error) bool { return target == ErrStatusConflict }

type ProjectStore interface {
	// Create assigns an ID when p.ID is empty and stamps both timestamps.
	Create(ctx context.Context, p *models.Project) error
	Get(ctx context.Context, id string) (*models.Project, error)
	// Transition moves the project to `to` only if its status is one of
	// `from`, writing the patch in the same step.
	Transition(ctx context.Context, id string, from []models.Status, to models.Status, patch models.Patch) (*models.Project, error)
	// Claim moves the project from `from` to `to` and takes the lease. It
	// fails with a ConflictError when the status differs or another run
	// holds an unexpired lease.
	Claim(ctx context.Context, id string, from, to models.Status, lease models.Lease) (*models.Project, error)
	// Release records the outcome of the run holding runID: it moves the
	// project from `from` to `to`, writes the patch and clears the lease.
	Release(ctx context.Context, id, runID string, from, to models.Status, patch models.Patch) (*models.Project, error)
	Delete(ctx context.Context, id string) error
	// List returns projects newest first.
	List(ctx context.Context) ([]*models.Project, error)
	Close() error
}

// checkTransition validates a compare-and-set against the status read
// from storage.
func checkTransition(id string, cur models.Status, from []models.Status, to models.Status) error {
	if !slices.Contains(from, cur) {
		return &ConflictError{ProjectID: id, Got: cur, Want: from}
	}
	if !cur.CanTransition(to) {
		return fmt.Errorf("illegal transition %s -> %s for project %s", cur, to, id)
	}
	return nil
}

func checkClaim(p *models.Project, from, to models.Status, now time.Time) error {
	if err := checkTransition(p.ID, p.Status, []models.Status{from}, to); err != nil {
		return err
	}
	if p.Leased(now) {
		return &ConflictError{ProjectID: p.ID, Got: p.Status, Want: []models.Status{from}, RunID: p.RunID}
	}
	return nil
}

func checkRelease(p *models.Project, runID string, from, to models.Status) error {
	if p.RunID != runID {
		return &ConflictError{ProjectID: p.ID, Got: p.Status, Want: []models.Status{from}, RunID: p.RunID}
	}
	return checkTransition(p.ID, p.Status, []models.Status{from}, to)
}

func prepareCreate(p *models.Project, newID func() string, now time.Time) error {
	if !p.Status.Valid() {
		return fmt.Errorf("invalid status %q", p.Status)
	}
	if p.ID == "" {
		p.ID = newID()
	}
	p.RunID = ""
	p.RunExpiresAt = time.Time{}
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}
