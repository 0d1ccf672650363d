package models

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// MaxUploadSize is the largest accepted source document.
const MaxUploadSize = 10 << 20

// FileType is the source document format.
type FileType string

const (
	FileTypeDOCX FileType = "docx"
	FileTypePDF  FileType = "pdf"
	FileTypePPTX FileType = "pptx"
)

// ParseFileType accepts a bare extension or a filename.
func ParseFileType(name string) (FileType, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext == "" {
		ext = strings.ToLower(strings.TrimPrefix(name, "."))
	}
	switch t := FileType(ext); t {
	case FileTypeDOCX, FileTypePDF, FileTypePPTX:
		return t, nil
	}
	return "", fmt.Errorf("unsupported file type %q", ext)
}

// Project is the persisted record that a document moves through the
// pipeline on. Each payload field is written by exactly one stage.
type Project struct {
	ID                 string    `firestore:"-" json:"id"`
	Title              string    `firestore:"title" json:"title"`
	OriginalFilename   string    `firestore:"originalFilename" json:"originalFilename"`
	FilePath           string    `firestore:"filePath" json:"filePath"`
	FileType           FileType  `firestore:"fileType" json:"fileType"`
	FileSize           int64     `firestore:"fileSize" json:"fileSize"`
	Status             Status    `firestore:"status" json:"status"`
	ExtractedText      string    `firestore:"extractedText,omitempty" json:"extractedText,omitempty"`
	CatNarrative       string    `firestore:"catNarrative,omitempty" json:"catNarrative,omitempty"`
	FormattedNarrative string    `firestore:"formattedNarrative,omitempty" json:"formattedNarrative,omitempty"`
	PDFPath            string    `firestore:"pdfPath,omitempty" json:"pdfPath,omitempty"`
	ErrorMessage       string    `firestore:"errorMessage,omitempty" json:"errorMessage,omitempty"`
	CreatedAt          time.Time `firestore:"createdAt" json:"createdAt"`
	UpdatedAt          time.Time `firestore:"updatedAt" json:"updatedAt"`

	// RunID and RunExpiresAt hold the lease of the stage run in flight.
	// They are empty while the project rests between stages.
	RunID        string    `firestore:"runId" json:"runId,omitempty"`
	RunExpiresAt time.Time `firestore:"runExpiresAt" json:"runExpiresAt,omitempty"`
}

// Leased reports whether a stage run holds an unexpired lease at now.
func (p *Project) Leased(now time.Time) bool {
	return p.RunID != "" && now.Before(p.RunExpiresAt)
}

// Lease is taken by a stage run when it starts and given back when its
// outcome is recorded. An expired lease belongs to a run that died.
type Lease struct {
	RunID     string
	ExpiresAt time.Time
}

// HumanFileSize renders FileSize in 1024-based units with two decimals.
func (p *Project) HumanFileSize() string {
	units := []string{"B", "KB", "MB", "GB"}
	size := float64(p.FileSize)
	i := 0
	for size > 1024 && i < len(units)-1 {
		size /= 1024
		i++
	}
	return fmt.Sprintf("%.2f %s", size, units[i])
}

// Patch lists the payload fields a status transition writes. Nil fields are
// left untouched; a pointer to "" clears the field.
type Patch struct {
	ExtractedText      *string
	CatNarrative       *string
	FormattedNarrative *string
	PDFPath            *string
	ErrorMessage       *string
}

// Apply copies the set fields of the patch onto p.
func (pt Patch) Apply(p *Project) {
	if pt.ExtractedText != nil {
		p.ExtractedText = *pt.ExtractedText
	}
	if pt.CatNarrative != nil {
		p.CatNarrative = *pt.CatNarrative
	}
	if pt.FormattedNarrative != nil {
		p.FormattedNarrative = *pt.FormattedNarrative
	}
	if pt.PDFPath != nil {
		p.PDFPath = *pt.PDFPath
	}
	if pt.ErrorMessage != nil {
		p.ErrorMessage = *pt.ErrorMessage
	}
}

// Fields returns the set fields keyed by their firestore names, in a fixed
// order.
func (pt Patch) Fields() []PatchField {
	var out []PatchField
	add := func(name string, v *string) {
		if v != nil {
			out = append(out, PatchField{Name: name, Value: *v})
		}
	}
	add("extractedText", pt.ExtractedText)
	add("catNarrative", pt.CatNarrative)
	add("formattedNarrative", pt.FormattedNarrative)
	add("pdfPath", pt.PDFPath)
	add("errorMessage", pt.ErrorMessage)
	return out
}

type PatchField struct {
	Name  string
	Value string
}

// Ptr returns a pointer to s, for building patches.
func Ptr(s string) *string { return &s }
