package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Lllllllleong/catstoryflow/internal/models"
	"github.com/Lllllllleong/catstoryflow/internal/store"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

func completedEvent(t *testing.T, stage models.StageName) cloudevents.Event {
	t.Helper()
	e := cloudevents.NewEvent()
	e.SetID("evt-1")
	e.SetSource(eventSource)
	e.SetType(EventStageCompleted)
	if err := e.SetData(cloudevents.ApplicationJSON, models.StageCompleted{ProjectID: "p1", Stage: stage}); err != nil {
		t.Fatal(err)
	}
	return e
}

func TestRouterDispatchesNextStage(t *testing.T) {
	tests := []struct {
		done models.StageName
		want models.StageName
	}{
		{models.StageExtractText, models.StageConvertToCat},
		{models.StageConvertToCat, models.StageFormatNarrative},
		{models.StageFormatNarrative, models.StageGeneratePDF},
		{models.StageGeneratePDF, ""},
	}
	for _, tt := range tests {
		t.Run(string(tt.done), func(t *testing.T) {
			d := &recordingDispatcher{}
			r := NewRouter(d, nil)
			if err := r.Publish(context.Background(), completedEvent(t, tt.done)); err != nil {
				t.Fatal(err)
			}
			if tt.want == "" {
				if len(d.tasks) != 0 {
					t.Fatalf("dispatched %v after the last stage", d.tasks)
				}
				return
			}
			if len(d.tasks) != 1 || d.tasks[0].Stage != tt.want || d.tasks[0].ProjectID != "p1" {
				t.Fatalf("tasks = %+v, want %s for p1", d.tasks, tt.want)
			}
		})
	}
}

func TestRouterRejectsForeignEvents(t *testing.T) {
	e := completedEvent(t, models.StageExtractText)
	e.SetType("com.example.other")
	d := &recordingDispatcher{}
	if err := NewRouter(d, nil).Publish(context.Background(), e); !models.IsPermanent(err) {
		t.Fatalf("err = %v, want a permanent error for an unknown event type", err)
	}
	if d.calls != 0 {
		t.Errorf("dispatcher called %d times", d.calls)
	}
}

func TestRouterStartRerenderAndResume(t *testing.T) {
	d := &recordingDispatcher{}
	r := NewRouter(d, nil)
	if err := r.Start(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	if err := r.Rerender(context.Background(), "b"); err != nil {
		t.Fatal(err)
	}
	if err := r.Resume(context.Background(), "c", models.StageFormatNarrative); err != nil {
		t.Fatal(err)
	}
	want := []models.StageTask{
		{ProjectID: "a", Stage: models.StageExtractText},
		{ProjectID: "b", Stage: models.StageGeneratePDF},
		{ProjectID: "c", Stage: models.StageFormatNarrative},
	}
	for i, task := range want {
		if d.tasks[i] != task {
			t.Errorf("task %d = %+v, want %+v", i, d.tasks[i], task)
		}
	}
	d.err = fmt.Errorf("queue full")
	if err := r.Start(context.Background(), "d"); err == nil {
		t.Error("dispatcher error was swallowed")
	}
}

// chainStages builds a four-stage pipeline whose work records the order in
// which stages ran for each project.
func chainStages(record func(id string, stage models.StageName)) []Stage {
	step := func(name models.StageName, from, active, to models.Status, patch func() models.Patch) Stage {
		return Stage{
			Name: name, Title: string(name), From: from, Active: active, To: to, Policy: fastPolicy,
			Work: func(_ context.Context, p *models.Project) (models.Patch, error) {
				record(p.ID, name)
				time.Sleep(time.Millisecond)
				return patch(), nil
			},
		}
	}
	return []Stage{
		step(models.StageExtractText, models.StatusUploaded, models.StatusExtractingText, models.StatusTextExtracted,
			func() models.Patch { return models.Patch{ExtractedText: models.Ptr("text")} }),
		step(models.StageConvertToCat, models.StatusTextExtracted, models.StatusConvertingToCat, models.StatusConvertingToCat,
			func() models.Patch { return models.Patch{CatNarrative: models.Ptr("meow")} }),
		step(models.StageFormatNarrative, models.StatusConvertingToCat, models.StatusFormatting, models.StatusGeneratingPDF,
			func() models.Patch { return models.Patch{FormattedNarrative: models.Ptr("# Meow")} }),
		step(models.StageGeneratePDF, models.StatusGeneratingPDF, models.StatusGeneratingPDF, models.StatusCompleted,
			func() models.Patch { return models.Patch{PDFPath: models.Ptr("pdfs/x.pdf")} }),
	}
}

func TestLocalQueueRunsEachProjectInOrder(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	var mu sync.Mutex
	order := map[string][]models.StageName{}
	record := func(id string, stage models.StageName) {
		mu.Lock()
		defer mu.Unlock()
		order[id] = append(order[id], stage)
	}

	q := NewLocalQueue(3, nil)
	router := NewRouter(q, nil)
	orch := NewOrchestrator(st, router, nil, chainStages(record)...)
	q.Start(ctx, orch)
	defer q.Close()

	var ids []string
	for range 5 {
		p := seed(t, st, models.StatusUploaded)
		ids = append(ids, p.ID)
		if err := router.Start(ctx, p.ID); err != nil {
			t.Fatal(err)
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := q.Wait(waitCtx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	want := []models.StageName{models.StageExtractText, models.StageConvertToCat, models.StageFormatNarrative, models.StageGeneratePDF}
	for _, id := range ids {
		p, _ := st.Get(ctx, id)
		if p.Status != models.StatusCompleted {
			t.Errorf("project %s ended in %s", id, p.Status)
		}
		got := order[id]
		if len(got) != len(want) {
			t.Fatalf("project %s ran %v", id, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("project %s stage %d = %s, want %s", id, i, got[i], want[i])
			}
		}
	}
}

func TestLocalQueueClosed(t *testing.T) {
	q := NewLocalQueue(1, nil)
	q.Start(context.Background(), NewOrchestrator(store.NewMemory(), nil, nil))
	if err := q.Close(); err != nil {
		t.Fatal(err)
	}
	if err := q.Dispatch(context.Background(), models.StageTask{ProjectID: "p"}); err != ErrQueueClosed {
		t.Fatalf("err = %v, want ErrQueueClosed", err)
	}
}
