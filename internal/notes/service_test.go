package notes

import (
	"errors"
	"strings"
	"testing"
)

func TestNewNotebookNameTrimsAndBounds(t *testing.T) {
	name, err := NewNotebookName("  Physics 101 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name.String() != "Physics 101" {
		t.Fatalf("expected trimmed name, got %q", name)
	}
	if _, err := NewNotebookName("   "); !errors.Is(err, ErrInvalidNotebookName) {
		t.Fatalf("expected invalid name for blank input, got %v", err)
	}
	if _, err := NewNotebookName(strings.Repeat("é", maxNameLength)); err != nil {
		t.Fatalf("expected %d runes to be accepted, got %v", maxNameLength, err)
	}
	if _, err := NewNotebookName(strings.Repeat("x", maxNameLength+1)); !errors.Is(err, ErrInvalidNotebookName) {
		t.Fatalf("expected invalid name for long input, got %v", err)
	}
}

func TestNewNoteTitleRejectsBlank(t *testing.T) {
	if _, err := NewNoteTitle("\t"); !errors.Is(err, ErrInvalidNoteTitle) {
		t.Fatalf("expected invalid title, got %v", err)
	}
	title, err := NewNoteTitle("Lecture 3")
	if err != nil || title.String() != "Lecture 3" {
		t.Fatalf("unexpected title %q, err %v", title, err)
	}
}

func TestNewStrokeDataRequiresJSON(t *testing.T) {
	testCases := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "object", input: `{"strokes":[{"points":[[0,0],[1,1]]}]}`},
		{name: "array", input: `[[0,0],[1,2]]`},
		{name: "blank", input: " ", wantErr: true},
		{name: "truncated", input: `{"strokes":[`, wantErr: true},
		{name: "plain text", input: "scribble", wantErr: true},
		{name: "json string", input: `"scribble"`, wantErr: true},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := NewStrokeData(testCase.input)
			if testCase.wantErr && !errors.Is(err, ErrInvalidStrokeData) {
				t.Fatalf("expected invalid stroke data, got %v", err)
			}
			if !testCase.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestNoteInputValidation(t *testing.T) {
	longURL := strings.Repeat("u", maxURLLength+1)
	if err := (NoteInput{Title: "ok", ThumbnailURL: &longURL}).validate(); !errors.Is(err, ErrInvalidThumbnailURL) {
		t.Fatalf("expected thumbnail error, got %v", err)
	}
	if err := (NoteInput{}).validate(); !errors.Is(err, ErrInvalidNoteTitle) {
		t.Fatalf("expected title error, got %v", err)
	}
}

func TestNotebookUpdateEmpty(t *testing.T) {
	if !(NotebookUpdate{}).Empty() {
		t.Fatalf("expected zero update to be empty")
	}
	archived := true
	if (NotebookUpdate{IsArchived: &archived}).Empty() {
		t.Fatalf("expected archive update to be non-empty")
	}
}

func TestParseID(t *testing.T) {
	if value, err := ParseID(" 42 "); err != nil || value != 42 {
		t.Fatalf("expected 42, got %d (%v)", value, err)
	}
	for _, raw := range []string{"", "0", "-1", "abc", "1.5"} {
		if _, err := ParseID(raw); !errors.Is(err, ErrInvalidID) {
			t.Fatalf("expected invalid id for %q, got %v", raw, err)
		}
	}
}

func TestTrimmedOrNil(t *testing.T) {
	blank := "   "
	if trimmedOrNil(&blank) != nil {
		t.Fatalf("expected blank text to become nil")
	}
	text := " hello "
	if got := trimmedOrNil(&text); got == nil || *got != "hello" {
		t.Fatalf("unexpected trimmed value %v", got)
	}
	if trimmedOrNil(nil) != nil {
		t.Fatalf("expected nil to stay nil")
	}
}
