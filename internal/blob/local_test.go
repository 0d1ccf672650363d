package blob

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestLocalRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	path := "pdfs/cat_narrative_p1_1700000000.pdf"
	if ok, err := s.Exists(ctx, path); err != nil || ok {
		t.Fatalf("Exists before Put = %v, %v", ok, err)
	}
	data := []byte("%PDF-1.3 whiskers")
	if err := s.Put(ctx, path, data); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ok, _ := s.Exists(ctx, path); !ok {
		t.Fatal("Exists after Put = false")
	}
	got, err := s.Get(ctx, path)
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("Get = %q, %v", got, err)
	}
	size, err := s.Size(ctx, path)
	if err != nil || size != int64(len(data)) {
		t.Fatalf("Size = %d, %v", size, err)
	}

	if err := s.Delete(ctx, path); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, path); err != nil {
		t.Fatalf("Delete of a missing blob: %v", err)
	}
	if _, err := s.Get(ctx, path); !errors.Is(err, ErrNotExist) {
		t.Fatalf("Get after Delete: %v", err)
	}
	if _, err := s.Size(ctx, path); !errors.Is(err, ErrNotExist) {
		t.Fatalf("Size after Delete: %v", err)
	}
}

func TestLocalRejectsEscapingPaths(t *testing.T) {
	s, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, path := range []string{"../outside", "uploads/../../x", ""} {
		if err := s.Put(context.Background(), path, []byte("x")); err == nil {
			t.Errorf("Put(%q) succeeded", path)
		}
	}
}
