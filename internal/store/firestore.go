package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/catstoryflow/internal/models"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Firestore keeps one document per project in a collection. The document
// ID is the project ID.
type Firestore struct {
	client     *firestore.Client
	collection string
	now        func() time.Time
}

func NewFirestore(client *firestore.Client, collection string) *Firestore {
	return &Firestore{client: client, collection: collection, now: func() time.Time { return time.Now().UTC() }}
}

func (f *Firestore) doc(id string) *firestore.DocumentRef {
	return f.client.Collection(f.collection).Doc(id)
}

func (f *Firestore) Create(ctx context.Context, p *models.Project) error {
	if err := prepareCreate(p, uuid.NewString, f.now()); err != nil {
		return err
	}
	if _, err := f.doc(p.ID).Create(ctx, p); err != nil {
		return fmt.Errorf("failed to create project document: %w", err)
	}
	return nil
}

func (f *Firestore) Get(ctx context.Context, id string) (*models.Project, error) {
	snap, err := f.doc(id).Get(ctx)
	if err != nil {
		return nil, notFound(id, err)
	}
	return decodeProject(snap)
}

// Transition reads and updates inside one Firestore transaction, which
// retries on contention and aborts if the status moved underneath it.
func (f *Firestore) Transition(ctx context.Context, id string, from []models.Status, to models.Status, patch models.Patch) (*models.Project, error) {
	return f.update(ctx, id, to, func(p *models.Project, _ time.Time) ([]firestore.Update, error) {
		if err := checkTransition(id, p.Status, from, to); err != nil {
			return nil, err
		}
		var updates []firestore.Update
		for _, field := range patch.Fields() {
			updates = append(updates, firestore.Update{Path: field.Name, Value: field.Value})
		}
		patch.Apply(p)
		return updates, nil
	})
}

// Claim takes the lease inside a transaction, which aborts and retries if
// another run wrote the document after it was read.
func (f *Firestore) Claim(ctx context.Context, id string, from, to models.Status, lease models.Lease) (*models.Project, error) {
	return f.update(ctx, id, to, func(p *models.Project, now time.Time) ([]firestore.Update, error) {
		if err := checkClaim(p, from, to, now); err != nil {
			return nil, err
		}
		p.RunID = lease.RunID
		p.RunExpiresAt = lease.ExpiresAt
		return []firestore.Update{
			{Path: "runId", Value: lease.RunID},
			{Path: "runExpiresAt", Value: lease.ExpiresAt},
		}, nil
	})
}

func (f *Firestore) Release(ctx context.Context, id, runID string, from, to models.Status, patch models.Patch) (*models.Project, error) {
	return f.update(ctx, id, to, func(p *models.Project, _ time.Time) ([]firestore.Update, error) {
		if err := checkRelease(p, runID, from, to); err != nil {
			return nil, err
		}
		updates := []firestore.Update{
			{Path: "runId", Value: ""},
			{Path: "runExpiresAt", Value: time.Time{}},
		}
		for _, field := range patch.Fields() {
			updates = append(updates, firestore.Update{Path: field.Name, Value: field.Value})
		}
		patch.Apply(p)
		p.RunID = ""
		p.RunExpiresAt = time.Time{}
		return updates, nil
	})
}

// update runs one read-check-write transaction that also moves the status
// to `to`. check validates the snapshot, adjusts it and returns the extra
// fields to write.
func (f *Firestore) update(ctx context.Context, id string, to models.Status, check func(p *models.Project, now time.Time) ([]firestore.Update, error)) (*models.Project, error) {
	ref := f.doc(id)
	var result *models.Project
	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return notFound(id, err)
		}
		p, err := decodeProject(snap)
		if err != nil {
			return err
		}
		now := f.now()
		extra, err := check(p, now)
		if err != nil {
			return err
		}
		updates := append([]firestore.Update{
			{Path: "status", Value: string(to)},
			{Path: "updatedAt", Value: now},
		}, extra...)
		if err := tx.Update(ref, updates); err != nil {
			return err
		}
		p.Status = to
		p.UpdatedAt = now
		result = p
		return nil
	})
	if err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) || errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update project %s to %s: %w", id, to, err)
	}
	return result, nil
}

func (f *Firestore) Delete(ctx context.Context, id string) error {
	if _, err := f.doc(id).Delete(ctx, firestore.Exists); err != nil {
		return notFound(id, err)
	}
	return nil
}

func (f *Firestore) List(ctx context.Context) ([]*models.Project, error) {
	iter := f.client.Collection(f.collection).OrderBy("createdAt", firestore.Desc).Documents(ctx)
	defer iter.Stop()
	var out []*models.Project
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list projects: %w", err)
		}
		p, err := decodeProject(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *Firestore) Close() error { return f.client.Close() }

func decodeProject(snap *firestore.DocumentSnapshot) (*models.Project, error) {
	var p models.Project
	if err := snap.DataTo(&p); err != nil {
		return nil, fmt.Errorf("failed to decode project %s: %w", snap.Ref.ID, err)
	}
	p.ID = snap.Ref.ID
	st, err := models.ParseStatus(string(p.Status))
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", p.ID, err)
	}
	p.Status = st
	return &p, nil
}

func notFound(id string, err error) error {
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return fmt.Errorf("failed to read project %s: %w", id, err)
}
