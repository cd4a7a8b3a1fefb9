package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"semhist/internal/errors"
	"semhist/internal/storage"
)

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", FormatHuman, false},
		{"human", FormatHuman, false},
		{"json", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		got, err := parseOutputFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseOutputFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseOutputFormat(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestWriteStructured(t *testing.T) {
	v := storage.Ref{Name: "HEAD", CommitID: 3, SHA: "abc"}

	var js bytes.Buffer
	if err := writeStructured(&js, v, FormatJSON); err != nil {
		t.Fatalf("writeStructured(json) error = %v", err)
	}
	if !strings.Contains(js.String(), `"commitId": 3`) {
		t.Errorf("json output = %q, want commitId field", js.String())
	}

	var ym bytes.Buffer
	if err := writeStructured(&ym, v, FormatYAML); err != nil {
		t.Fatalf("writeStructured(yaml) error = %v", err)
	}
	if !strings.Contains(ym.String(), "commitId: 3") {
		t.Errorf("yaml output = %q, want commitId field", ym.String())
	}

	if err := writeStructured(&ym, v, FormatHuman); err == nil {
		t.Error("writeStructured(human) error = nil, want error")
	}
}

func TestFormatStatusHuman(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	finished := now.Add(-58 * time.Minute)
	resp := &StatusResponseCLI{
		Version: "0.4.0",
		Root:    "/src/demo",
		DBPath:  "/src/demo/.semhist/history.db",
		Summary: &storage.StatusSummary{
			Commits:          1200,
			WithPresence:     1200,
			WithChanges:      600,
			WithReachability: 1200,
			Entities:         15342,
			Files:            210,
			LastRun: &storage.Run{
				ID:              "run-1",
				StartedAt:       now.Add(-time.Hour),
				FinishedAt:      &finished,
				Status:          storage.RunSucceeded,
				CommitsSeen:     1200,
				CommitsIngested: 1200,
			},
		},
		Refs: []storage.Ref{{Name: "HEAD", SHA: "0123456789abcdef"}},
	}

	out := formatStatusHuman(resp, now)
	for _, want := range []string{
		"semhist v0.4.0",
		"Commits:         1,200",
		"changes:       600 (50%)",
		"15,342 in 210 files",
		"HEAD",
		"0123456789\n",
		"succeeded, 1 hour ago",
		"took 2m0s",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("formatStatusHuman() missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Dependencies") {
		t.Error("formatStatusHuman() lists dependencies although none were imported")
	}
}

func TestShortSHA(t *testing.T) {
	if got := shortSHA("0123456789abcdef"); got != "0123456789" {
		t.Errorf("shortSHA() = %q, want %q", got, "0123456789")
	}
	if got := shortSHA("abc"); got != "abc" {
		t.Errorf("shortSHA() = %q, want %q", got, "abc")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errors.New(errors.NotInitialized, "x", nil), 2},
		{errors.New(errors.InvalidConfig, "x", nil), 2},
		{errors.New(errors.GraphInvariantViolation, "x", nil), 3},
		{errors.New(errors.StorageError, "x", nil), 1},
	}

	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
