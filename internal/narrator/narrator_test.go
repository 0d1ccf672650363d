package narrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Lllllllleong/catstoryflow/internal/models"
)

type fakeClient struct {
	replies   []string
	err       error
	missing   error
	requests  []Request
	callIndex int
}

func (f *fakeClient) Name() string      { return "fake" }
func (f *fakeClient) Configured() error { return f.missing }

func (f *fakeClient) Complete(_ context.Context, req Request) (string, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	if f.callIndex >= len(f.replies) {
		return "Meow.", nil
	}
	r := f.replies[f.callIndex]
	f.callIndex++
	return r, nil
}

type countingPacer struct{ waits int }

func (p *countingPacer) Wait(context.Context) error {
	p.waits++
	return nil
}

func longText(sentences int) string {
	var b strings.Builder
	for i := 0; i < sentences; i++ {
		b.WriteString("The human left the laptop open and I walked across the keyboard twice. ")
	}
	return b.String()
}

func TestTransformSingleChunk(t *testing.T) {
	client := &fakeClient{replies: []string{"  I, the cat, read your memo\n\n\n\nand napped on it  "}}
	pacer := &countingPacer{}
	n := New(client, DefaultConfig(), WithPacer(pacer))

	got, err := n.Transform(context.Background(), "Quarterly memo about budgets.")
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if got != "I, the cat, read your memo\n\nand napped on it." {
		t.Fatalf("unexpected output %q", got)
	}
	if pacer.waits != 1 {
		t.Fatalf("pacer consulted %d times, want 1", pacer.waits)
	}
	req := client.requests[0]
	if req.System != SystemPrompt || !strings.Contains(req.User, "--- TEXT TO TRANSFORM ---\nQuarterly memo about budgets.\n--- END TEXT ---") {
		t.Fatalf("unexpected request %+v", req)
	}
	if req.Model != "gpt-3.5-turbo" || req.MaxTokens != 3000 || req.Temperature != 0.8 || req.TopP != 0.9 {
		t.Fatalf("unexpected sampling parameters %+v", req)
	}
}

func TestTransformMultipleChunksSequentialAndPaced(t *testing.T) {
	client := &fakeClient{replies: []string{"Part one!", "Part two?", "Part three"}}
	pacer := &countingPacer{}
	cfg := DefaultConfig()
	cfg.ChunkSize = 200
	n := New(client, cfg, WithPacer(pacer))

	text := longText(7) // two sentences per chunk, four chunks
	got, err := n.Transform(context.Background(), text)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if len(client.requests) != 4 {
		t.Fatalf("expected 4 calls, got %d", len(client.requests))
	}
	if pacer.waits != len(client.requests) {
		t.Fatalf("pacer consulted %d times for %d calls", pacer.waits, len(client.requests))
	}
	if !strings.HasPrefix(got, "Part one!\n\nPart two?\n\nPart three") {
		t.Fatalf("chunks not joined with blank lines: %q", got)
	}
}

func TestTransformEmptyResponseIsFailure(t *testing.T) {
	client := &fakeClient{replies: []string{"   \n  "}}
	n := New(client, DefaultConfig(), WithPacer(&countingPacer{}))

	_, err := n.Transform(context.Background(), "Something to narrate.")
	var te *models.TransformationError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransformationError, got %v", err)
	}
	if !strings.Contains(err.Error(), "empty") {
		t.Fatalf("error should mention the empty response: %v", err)
	}
}

func TestTransformAbortsOnFirstFailedChunk(t *testing.T) {
	client := &fakeClient{err: errors.New("503 upstream")}
	cfg := DefaultConfig()
	cfg.ChunkSize = 100
	n := New(client, cfg, WithPacer(&countingPacer{}))

	_, err := n.Transform(context.Background(), longText(5))
	if err == nil || !strings.Contains(err.Error(), "chunk 1 of") {
		t.Fatalf("expected chunk-1 failure, got %v", err)
	}
	if len(client.requests) != 1 {
		t.Fatalf("expected the transform to stop after one call, got %d", len(client.requests))
	}
}

func TestTransformRejectsRefusal(t *testing.T) {
	client := &fakeClient{replies: []string{"I'm sorry, but I can't help with that."}}
	n := New(client, DefaultConfig(), WithPacer(&countingPacer{}))
	if _, err := n.Transform(context.Background(), "Some text."); err == nil {
		t.Fatal("expected refusal to fail the transform")
	}
}

func TestTransformMissingCredentialsIsPermanent(t *testing.T) {
	client := &fakeClient{missing: errors.New("OPENAI_API_KEY is not set")}
	n := New(client, DefaultConfig(), WithPacer(&countingPacer{}))
	_, err := n.Transform(context.Background(), "Some text.")
	if !models.IsPermanent(err) {
		t.Fatalf("expected a permanent error, got %v", err)
	}
	if len(client.requests) != 0 {
		t.Fatal("no call should be made without credentials")
	}
}

func TestPostProcess(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Purr", "Purr."},
		{"Purr!", "Purr!"},
		{"Really?", "Really?"},
		{"a\n\n\n\nb.", "a\n\nb."},
		{"  \n ", ""},
	}
	for _, tt := range tests {
		if got := PostProcess(tt.in); got != tt.want {
			t.Errorf("PostProcess(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEstimateProcessingTime(t *testing.T) {
	if got := EstimateProcessingTime("Short text.", 2000); got != 10*time.Second {
		t.Fatalf("single chunk estimate = %v", got)
	}
	n := New(&fakeClient{}, Config{ChunkSize: 200})
	if got := n.EstimateProcessingTime(longText(7)); got != 4*10*time.Second+3*time.Second {
		t.Fatalf("four chunk estimate = %v", got)
	}
	if got := EstimateProcessingTime("", 2000); got != 0 {
		t.Fatalf("empty estimate = %v", got)
	}
}

func TestValidateReadiness(t *testing.T) {
	ok := New(&fakeClient{replies: []string{"meow"}}, DefaultConfig())
	if !ok.ValidateReadiness(context.Background()) {
		t.Fatal("expected ready")
	}

	pinged := &fakeClient{}
	New(pinged, DefaultConfig()).ValidateReadiness(context.Background())
	if len(pinged.requests) != 1 || pinged.requests[0].MaxTokens != 10 || pinged.requests[0].User != PingPrompt {
		t.Fatalf("unexpected ping request %+v", pinged.requests)
	}

	tests := map[string]*fakeClient{
		"missing credentials": {missing: errors.New("no key")},
		"call fails":          {err: errors.New("unreachable")},
		"empty reply":         {replies: []string{" "}},
	}
	for name, c := range tests {
		if New(c, DefaultConfig()).ValidateReadiness(context.Background()) {
			t.Errorf("%s: expected not ready", name)
		}
	}
}

func TestConfigTemperatureIsClamped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Temperature = 3.5
	n := New(&fakeClient{}, cfg)
	if n.cfg.Temperature != 2 {
		t.Fatalf("temperature = %v, want 2", n.cfg.Temperature)
	}
}

func TestEchoReturnsSourceText(t *testing.T) {
	got, _ := Echo{}.Complete(context.Background(), Request{User: UserPrompt("The memo.\n\nSecond line.")})
	if got != "The memo.\n\nSecond line." {
		t.Fatalf("got %q", got)
	}
}
