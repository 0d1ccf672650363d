package main

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeDocx(t *testing.T, path, text string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	body := `<?xml version="1.0" encoding="UTF-8"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		`<w:p><w:r><w:t>` + text + `</w:t></w:r></w:p>` +
		`</w:body></w:document>`
	if _, err := w.Write([]byte(body)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRunSyncWithEchoNarrator(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "Team Notes.docx")
	sentence := "The curious cat watched the busy humans type all day. "
	writeDocx(t, src, strings.TrimSpace(strings.Repeat(sentence, 19)))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{
		"run", src, "--sync",
		"--narrator", "echo",
		"--data-dir", filepath.Join(dir, "data"),
		"--log-level", "error",
	})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("run: %v\n%s", err, out.String())
	}

	got := out.String()
	for _, want := range []string{"Created project", "Title:    Team Notes", "Status:   Completed (100%)", "PDF:      pdfs/"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestResumeRefusesFinishedProject(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "memo.docx")
	writeDocx(t, src, strings.TrimSpace(strings.Repeat("The cat approved the memo without reading it. ", 12)))
	common := []string{"--narrator", "echo", "--data-dir", filepath.Join(dir, "data"), "--log-level", "error"}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(append([]string{"run", src, "--sync"}, common...))
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("run: %v\n%s", err, out.String())
	}
	var id string
	for _, line := range strings.Split(out.String(), "\n") {
		if rest, ok := strings.CutPrefix(line, "ID:"); ok {
			id = strings.TrimSpace(rest)
		}
	}
	if id == "" {
		t.Fatalf("no project ID in output:\n%s", out.String())
	}

	rootCmd.SetArgs(append([]string{"resume", id}, common...))
	err := rootCmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "regenerate") {
		t.Fatalf("resume of a completed project: err = %v", err)
	}
}
