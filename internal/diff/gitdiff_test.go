package diff

import (
	"testing"
)

func TestParseGitDiff_Empty(t *testing.T) {
	result, err := NewGitDiffParser().Parse(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("expected 0 files, got %d", len(result))
	}
}

func TestParseGitDiff_ZeroContext(t *testing.T) {
	diff := `diff --git a/src/Foo.java b/src/Foo.java
index 1111111111111111111111111111111111111111..2222222222222222222222222222222222222222 100644
--- a/src/Foo.java
+++ b/src/Foo.java
@@ -3 +3 @@ class Foo {
-    int a;
+    int b;
@@ -10,0 +11,2 @@ class Foo {
+    void m() {
+    }
@@ -20,2 +21,0 @@ class Foo {
-    // gone
-    // gone too
`

	files, err := ParseGitDiff([]byte(diff))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(files))
	}

	f := files[0]
	if f.OldPath != "src/Foo.java" || f.NewPath != "src/Foo.java" {
		t.Errorf("paths = %q -> %q, want src/Foo.java", f.OldPath, f.NewPath)
	}
	if f.Status != FileModified {
		t.Errorf("Status = %v, want %v", f.Status, FileModified)
	}
	if f.OldBlob != "1111111111111111111111111111111111111111" {
		t.Errorf("OldBlob = %q", f.OldBlob)
	}
	if f.NewBlob != "2222222222222222222222222222222222222222" {
		t.Errorf("NewBlob = %q", f.NewBlob)
	}

	want := []Hunk{
		{OldStart: 3, OldLines: 1, NewStart: 3, NewLines: 1},
		{OldStart: 10, OldLines: 0, NewStart: 11, NewLines: 2},
		{OldStart: 20, OldLines: 2, NewStart: 21, NewLines: 0},
	}
	if len(f.Hunks) != len(want) {
		t.Fatalf("expected %d hunks, got %d", len(want), len(f.Hunks))
	}
	for i := range want {
		if f.Hunks[i] != want[i] {
			t.Errorf("hunk %d = %v, want %v", i, f.Hunks[i], want[i])
		}
	}
	if f.LinesAdded() != 3 || f.LinesDeleted() != 3 {
		t.Errorf("LinesAdded/Deleted = %d/%d, want 3/3", f.LinesAdded(), f.LinesDeleted())
	}
	if err := NewValidator().Validate(f.Hunks); err != nil {
		t.Errorf("parsed hunks should chain: %v", err)
	}
}

func TestParseGitDiff_NewAndDeletedFiles(t *testing.T) {
	diff := `diff --git a/New.java b/New.java
new file mode 100644
index 0000000000000000000000000000000000000000..3333333333333333333333333333333333333333
--- /dev/null
+++ b/New.java
@@ -0,0 +1,2 @@
+class New {
+}
diff --git a/Old.java b/Old.java
deleted file mode 100644
index 4444444444444444444444444444444444444444..0000000000000000000000000000000000000000
--- a/Old.java
+++ /dev/null
@@ -1,3 +0,0 @@
-class Old {
-    int x;
-}
`

	files, err := ParseGitDiff([]byte(diff))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}

	added := files[0]
	if added.Status != FileAdded {
		t.Errorf("Status = %v, want %v", added.Status, FileAdded)
	}
	if added.OldPath != "" || added.NewPath != "New.java" || added.Path() != "New.java" {
		t.Errorf("paths = %q -> %q", added.OldPath, added.NewPath)
	}
	if added.OldBlob != "" || added.NewBlob == "" {
		t.Errorf("blobs = %q -> %q", added.OldBlob, added.NewBlob)
	}
	if len(added.Hunks) != 1 || added.Hunks[0] != (Hunk{0, 0, 1, 2}) {
		t.Errorf("hunks = %v", added.Hunks)
	}

	deleted := files[1]
	if deleted.Status != FileDeleted {
		t.Errorf("Status = %v, want %v", deleted.Status, FileDeleted)
	}
	if deleted.NewPath != "" || deleted.Path() != "Old.java" {
		t.Errorf("paths = %q -> %q", deleted.OldPath, deleted.NewPath)
	}
	if deleted.NewBlob != "" {
		t.Errorf("NewBlob = %q, want empty", deleted.NewBlob)
	}
	if len(deleted.Hunks) != 1 || deleted.Hunks[0] != (Hunk{1, 3, 0, 0}) {
		t.Errorf("hunks = %v", deleted.Hunks)
	}
}

func TestCleanPath(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"a/foo.go", "foo.go"},
		{"b/foo.go", "foo.go"},
		{"foo.go", "foo.go"},
		{"/dev/null", ""},
		{"", ""},
		{"a/src/b/foo.go", "src/b/foo.go"},
	}

	for _, tt := range tests {
		if got := cleanPath(tt.input); got != tt.want {
			t.Errorf("cleanPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestParseIndexLine(t *testing.T) {
	tests := []struct {
		line    string
		wantOld string
		wantNew string
	}{
		{"index abc123..def456 100644", "abc123", "def456"},
		{"index abc123..def456", "abc123", "def456"},
		{"index 0000000..def456", "", "def456"},
		{"index garbage", "", ""},
	}

	for _, tt := range tests {
		gotOld, gotNew := parseIndexLine(tt.line)
		if gotOld != tt.wantOld || gotNew != tt.wantNew {
			t.Errorf("parseIndexLine(%q) = %q, %q, want %q, %q", tt.line, gotOld, gotNew, tt.wantOld, tt.wantNew)
		}
	}
}

func TestNamesFromHeader(t *testing.T) {
	o, n := namesFromHeader([]string{"diff --git a/img.png b/img.png", "Binary files a/img.png and b/img.png differ"})
	if o != "a/img.png" || n != "b/img.png" {
		t.Errorf("namesFromHeader() = %q, %q", o, n)
	}
}
