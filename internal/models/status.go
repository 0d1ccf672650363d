package models

import "fmt"

// Status is the pipeline position of a Project. The set is closed; stores
// reject any value not listed in statusTable.
type Status string

const (
	StatusUploaded        Status = "uploaded"
	StatusExtractingText  Status = "extracting_text"
	StatusTextExtracted   Status = "text_extracted"
	StatusConvertingToCat Status = "converting_to_cat"
	StatusFormatting      Status = "formatting"
	StatusGeneratingPDF   Status = "generating_pdf"
	StatusCompleted       Status = "completed"
	StatusFailed          Status = "failed"
)

type statusInfo struct {
	display  string
	color    string
	progress int
	active   bool
	next     []Status
}

// statusTable is the single source for display text, progress and the
// allowed forward transitions. Entering failed is permitted from every active
// status; generating_pdf may also be re-entered from completed or failed by
// regeneration.
var statusTable = map[Status]statusInfo{
	StatusUploaded: {
		display: "Uploaded", color: "slate", progress: 0,
		next: []Status{StatusExtractingText},
	},
	StatusExtractingText: {
		display: "Extracting Text", color: "amber", progress: 10, active: true,
		next: []Status{StatusTextExtracted, StatusFailed},
	},
	StatusTextExtracted: {
		display: "Text Extracted", color: "amber", progress: 25,
		next: []Status{StatusConvertingToCat},
	},
	StatusConvertingToCat: {
		display: "Converting to Cat Speak", color: "amber", progress: 40, active: true,
		next: []Status{StatusFormatting, StatusFailed},
	},
	StatusFormatting: {
		display: "Formatting Story", color: "amber", progress: 70, active: true,
		next: []Status{StatusGeneratingPDF, StatusFailed},
	},
	StatusGeneratingPDF: {
		display: "Generating PDF", color: "amber", progress: 85, active: true,
		next: []Status{StatusCompleted, StatusFailed},
	},
	StatusCompleted: {
		display: "Completed", color: "emerald", progress: 100,
		next: []Status{StatusGeneratingPDF},
	},
	StatusFailed: {
		display: "Failed", color: "red", progress: 0,
		next: []Status{StatusGeneratingPDF},
	},
}

// AllStatuses lists every status in pipeline order.
func AllStatuses() []Status {
	return []Status{
		StatusUploaded, StatusExtractingText, StatusTextExtracted, StatusConvertingToCat,
		StatusFormatting, StatusGeneratingPDF, StatusCompleted, StatusFailed,
	}
}

// ParseStatus validates a raw value read from storage.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if _, ok := statusTable[s]; !ok {
		return "", fmt.Errorf("unknown project status %q", raw)
	}
	return s, nil
}

func (s Status) Valid() bool {
	_, ok := statusTable[s]
	return ok
}

func (s Status) Display() string {
	if info, ok := statusTable[s]; ok {
		return info.display
	}
	return "Unknown"
}

func (s Status) Color() string {
	if info, ok := statusTable[s]; ok {
		return info.color
	}
	return "slate"
}

func (s Status) Progress() int {
	return statusTable[s].progress
}

// IsProcessing reports whether a stage is in flight for this status.
func (s Status) IsProcessing() bool {
	return statusTable[s].active
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether moving from s to to is a legal edge. Staying
// in place is always allowed: the narrative stage finishes in the
// status it ran under.
func (s Status) CanTransition(to Status) bool {
	if s == to {
		return s.Valid()
	}
	for _, n := range statusTable[s].next {
		if n == to {
			return true
		}
	}
	return false
}
