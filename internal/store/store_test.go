package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Lllllllleong/catstoryflow/internal/models"
)

func newProject(title string) *models.Project {
	return &models.Project{
		Title:            title,
		OriginalFilename: title + ".docx",
		FilePath:         "uploads/1_" + title + ".docx",
		FileType:         models.FileTypeDOCX,
		FileSize:         2048,
		Status:           models.StatusUploaded,
	}
}

// runConformance checks the behaviour every ProjectStore must share.
func runConformance(t *testing.T, open func(t *testing.T) ProjectStore) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		s := open(t)
		p := newProject("notes")
		if err := s.Create(ctx, p); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if p.ID == "" {
			t.Fatal("Create did not assign an ID")
		}
		got, err := s.Get(ctx, p.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Title != "notes" || got.Status != models.StatusUploaded || got.FileSize != 2048 {
			t.Errorf("Get = %+v", got)
		}
		if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
			t.Error("timestamps not set")
		}
	})

	t.Run("create rejects invalid status", func(t *testing.T) {
		s := open(t)
		p := newProject("bad")
		p.Status = "sleeping"
		if err := s.Create(ctx, p); err == nil {
			t.Fatal("expected an error for an unknown status")
		}
	})

	t.Run("get missing", func(t *testing.T) {
		s := open(t)
		if _, err := s.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("transition writes patch", func(t *testing.T) {
		s := open(t)
		p := newProject("patch")
		if err := s.Create(ctx, p); err != nil {
			t.Fatal(err)
		}
		if _, err := s.Transition(ctx, p.ID, []models.Status{models.StatusUploaded}, models.StatusExtractingText, models.Patch{}); err != nil {
			t.Fatalf("begin: %v", err)
		}
		got, err := s.Transition(ctx, p.ID, []models.Status{models.StatusExtractingText}, models.StatusTextExtracted,
			models.Patch{ExtractedText: models.Ptr("the cat sat")})
		if err != nil {
			t.Fatalf("finish: %v", err)
		}
		if got.Status != models.StatusTextExtracted || got.ExtractedText != "the cat sat" {
			t.Errorf("Transition returned %+v", got)
		}
		stored, _ := s.Get(ctx, p.ID)
		if stored.ExtractedText != "the cat sat" || stored.Status != models.StatusTextExtracted {
			t.Errorf("stored = %+v", stored)
		}
	})

	t.Run("transition conflict leaves record unchanged", func(t *testing.T) {
		s := open(t)
		p := newProject("conflict")
		if err := s.Create(ctx, p); err != nil {
			t.Fatal(err)
		}
		_, err := s.Transition(ctx, p.ID, []models.Status{models.StatusTextExtracted}, models.StatusConvertingToCat,
			models.Patch{CatNarrative: models.Ptr("meow")})
		if !errors.Is(err, ErrStatusConflict) {
			t.Fatalf("err = %v, want ErrStatusConflict", err)
		}
		var conflict *ConflictError
		if !errors.As(err, &conflict) || conflict.Got != models.StatusUploaded {
			t.Errorf("conflict = %+v", conflict)
		}
		stored, _ := s.Get(ctx, p.ID)
		if stored.Status != models.StatusUploaded || stored.CatNarrative != "" {
			t.Errorf("record changed: %+v", stored)
		}
	})

	t.Run("transition missing", func(t *testing.T) {
		s := open(t)
		_, err := s.Transition(ctx, "nope", []models.Status{models.StatusUploaded}, models.StatusExtractingText, models.Patch{})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("patch clears fields", func(t *testing.T) {
		s := open(t)
		p := newProject("regen")
		p.Status = models.StatusCompleted
		p.PDFPath = "pdfs/old.pdf"
		p.ErrorMessage = "stale"
		if err := s.Create(ctx, p); err != nil {
			t.Fatal(err)
		}
		got, err := s.Transition(ctx, p.ID, []models.Status{models.StatusCompleted, models.StatusFailed}, models.StatusGeneratingPDF,
			models.Patch{PDFPath: models.Ptr(""), ErrorMessage: models.Ptr("")})
		if err != nil {
			t.Fatal(err)
		}
		if got.PDFPath != "" || got.ErrorMessage != "" || got.Status != models.StatusGeneratingPDF {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("claim holds off a second run in the same status", func(t *testing.T) {
		s := open(t)
		p := newProject("render")
		p.Status = models.StatusGeneratingPDF
		if err := s.Create(ctx, p); err != nil {
			t.Fatal(err)
		}
		lease := models.Lease{RunID: "run-1", ExpiresAt: time.Now().Add(time.Hour)}
		got, err := s.Claim(ctx, p.ID, models.StatusGeneratingPDF, models.StatusGeneratingPDF, lease)
		if err != nil {
			t.Fatalf("Claim: %v", err)
		}
		if got.RunID != "run-1" || !got.Leased(time.Now()) {
			t.Errorf("claimed project = %+v", got)
		}

		_, err = s.Claim(ctx, p.ID, models.StatusGeneratingPDF, models.StatusGeneratingPDF,
			models.Lease{RunID: "run-2", ExpiresAt: time.Now().Add(time.Hour)})
		var conflict *ConflictError
		if !errors.As(err, &conflict) || conflict.RunID != "run-1" {
			t.Fatalf("second Claim: err = %v, want a conflict naming run-1", err)
		}
		stored, _ := s.Get(ctx, p.ID)
		if stored.RunID != "run-1" {
			t.Errorf("lease changed hands: %+v", stored)
		}
	})

	t.Run("expired lease can be claimed", func(t *testing.T) {
		s := open(t)
		p := newProject("stale")
		p.Status = models.StatusGeneratingPDF
		if err := s.Create(ctx, p); err != nil {
			t.Fatal(err)
		}
		stale := models.Lease{RunID: "dead", ExpiresAt: time.Now().Add(-time.Minute)}
		if _, err := s.Claim(ctx, p.ID, models.StatusGeneratingPDF, models.StatusGeneratingPDF, stale); err != nil {
			t.Fatal(err)
		}
		got, err := s.Claim(ctx, p.ID, models.StatusGeneratingPDF, models.StatusGeneratingPDF,
			models.Lease{RunID: "fresh", ExpiresAt: time.Now().Add(time.Hour)})
		if err != nil {
			t.Fatalf("Claim over an expired lease: %v", err)
		}
		if got.RunID != "fresh" {
			t.Errorf("RunID = %s", got.RunID)
		}
	})

	t.Run("release needs the lease and clears it", func(t *testing.T) {
		s := open(t)
		p := newProject("release")
		if err := s.Create(ctx, p); err != nil {
			t.Fatal(err)
		}
		lease := models.Lease{RunID: "run-1", ExpiresAt: time.Now().Add(time.Hour)}
		if _, err := s.Claim(ctx, p.ID, models.StatusUploaded, models.StatusExtractingText, lease); err != nil {
			t.Fatal(err)
		}
		patch := models.Patch{ExtractedText: models.Ptr("the cat sat")}
		if _, err := s.Release(ctx, p.ID, "run-2", models.StatusExtractingText, models.StatusTextExtracted, patch); !errors.Is(err, ErrStatusConflict) {
			t.Fatalf("Release by another run: err = %v, want ErrStatusConflict", err)
		}
		got, err := s.Release(ctx, p.ID, "run-1", models.StatusExtractingText, models.StatusTextExtracted, patch)
		if err != nil {
			t.Fatalf("Release: %v", err)
		}
		if got.Status != models.StatusTextExtracted || got.ExtractedText != "the cat sat" || got.RunID != "" {
			t.Errorf("released project = %+v", got)
		}
		stored, _ := s.Get(ctx, p.ID)
		if stored.RunID != "" || !stored.RunExpiresAt.IsZero() || stored.ExtractedText != "the cat sat" {
			t.Errorf("stored = %+v", stored)
		}
	})

	t.Run("claim missing", func(t *testing.T) {
		s := open(t)
		_, err := s.Claim(ctx, "nope", models.StatusUploaded, models.StatusExtractingText, models.Lease{RunID: "r"})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		s := open(t)
		p := newProject("gone")
		if err := s.Create(ctx, p); err != nil {
			t.Fatal(err)
		}
		if err := s.Delete(ctx, p.ID); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := s.Get(ctx, p.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get after delete: %v", err)
		}
		if err := s.Delete(ctx, p.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("second Delete: %v", err)
		}
	})

	t.Run("list newest first", func(t *testing.T) {
		s := open(t)
		for _, title := range []string{"first", "second", "third"} {
			if err := s.Create(ctx, newProject(title)); err != nil {
				t.Fatal(err)
			}
			time.Sleep(2 * time.Millisecond)
		}
		list, err := s.List(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(list) != 3 {
			t.Fatalf("len = %d, want 3", len(list))
		}
		if list[0].Title != "third" || list[2].Title != "first" {
			t.Errorf("order = %s, %s, %s", list[0].Title, list[1].Title, list[2].Title)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	runConformance(t, func(t *testing.T) ProjectStore { return NewMemory() })
}

func TestSQLiteStore(t *testing.T) {
	runConformance(t, func(t *testing.T) ProjectStore {
		s, err := OpenSQLite(":memory:")
		if err != nil {
			t.Fatalf("OpenSQLite: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestSQLiteRejectsIllegalEdge(t *testing.T) {
	s, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	p := newProject("skip")
	if err := s.Create(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	_, err = s.Transition(context.Background(), p.ID, []models.Status{models.StatusUploaded}, models.StatusCompleted, models.Patch{})
	if err == nil || errors.Is(err, ErrStatusConflict) {
		t.Fatalf("err = %v, want an illegal transition error", err)
	}
}
