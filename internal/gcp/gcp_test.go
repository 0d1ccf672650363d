package gcp

import (
	"testing"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/catstoryflow/internal/models"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

func TestResponseText(t *testing.T) {
	candidate := func(parts ...genai.Part) *genai.GenerateContentResponse {
		return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: parts}}}}
	}
	tests := []struct {
		name    string
		resp    *genai.GenerateContentResponse
		want    string
		wantErr bool
	}{
		{"nil", nil, "", false},
		{"joined parts", candidate(genai.Text("I am "), genai.Text("the cat.")), "I am the cat.", false},
		{"fenced", candidate(genai.Text("```markdown\nMeow.\n```")), "Meow.", false},
		{"no candidates", &genai.GenerateContentResponse{}, "", false},
		{
			"blocked",
			&genai.GenerateContentResponse{PromptFeedback: &genai.PromptFeedback{BlockReason: genai.BlockedReasonSafety}},
			"", true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := responseText(tt.resp)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseGCSEvent(t *testing.T) {
	e := cloudevents.NewEvent()
	e.SetID("1")
	e.SetSource("//storage.googleapis.com/projects/_/buckets/b")
	e.SetType("google.cloud.storage.object.v1.finalized")
	if err := e.SetData(cloudevents.ApplicationJSON, map[string]string{"bucket": "b", "name": "uploads/1_a.pdf", "size": "2048"}); err != nil {
		t.Fatal(err)
	}
	got, err := ParseGCSEvent(e)
	if err != nil {
		t.Fatal(err)
	}
	if got != (models.GCSEvent{Bucket: "b", Name: "uploads/1_a.pdf", Size: "2048"}) {
		t.Errorf("got %+v", got)
	}
	if size, err := ObjectSize(got); err != nil || size != 2048 {
		t.Errorf("ObjectSize = %d, %v", size, err)
	}

	empty := cloudevents.NewEvent()
	empty.SetData(cloudevents.ApplicationJSON, map[string]string{})
	if _, err := ParseGCSEvent(empty); err == nil {
		t.Error("expected an error for an event without an object")
	}
}
