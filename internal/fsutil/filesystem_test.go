package fsutil

import (
	"errors"
	"io/fs"
	"path/filepath"
	"reflect"
	"testing"
)

func TestOSFileSystem_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	fsys := OSFileSystem{}

	target := filepath.Join(dir, "journal", "binbot.db")
	if err := EnsureParent(fsys, target); err != nil {
		t.Fatalf("EnsureParent failed: %v", err)
	}
	info, err := fsys.Stat(filepath.Dir(target))
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if !info.IsDir() {
		t.Errorf("expected %s to be a directory", filepath.Dir(target))
	}

	labels := filepath.Join(dir, "labels.txt")
	if err := fsys.WriteFile(labels, []byte("0 trash\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	data, err := fsys.ReadFile(labels)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "0 trash\n" {
		t.Errorf("ReadFile = %q", data)
	}
}

func TestMemoryFileSystem_WriteAndRead(t *testing.T) {
	mfs := NewMemoryFileSystem()

	if err := mfs.WriteFile("/opt/binbot/labels.txt", []byte("0 trash"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	data, err := mfs.ReadFile("/opt/binbot/labels.txt")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "0 trash" {
		t.Errorf("expected %q, got %q", "0 trash", data)
	}

	// Callers cannot mutate stored contents.
	data[0] = 'X'
	again, _ := mfs.ReadFile("/opt/binbot/labels.txt")
	if string(again) != "0 trash" {
		t.Errorf("stored contents changed: %q", again)
	}

	want := []string{"/", "/opt", "/opt/binbot"}
	if got := mfs.Dirs(); !reflect.DeepEqual(got, want) {
		t.Errorf("Dirs() = %v, want %v", got, want)
	}
}

func TestMemoryFileSystem_Missing(t *testing.T) {
	mfs := NewMemoryFileSystem()

	if _, err := mfs.ReadFile("/nope"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("ReadFile error = %v, want ErrNotExist", err)
	}
	if _, err := mfs.Stat("/nope"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Stat error = %v, want ErrNotExist", err)
	}
}

func TestMemoryFileSystem_Stat(t *testing.T) {
	mfs := NewMemoryFileSystem()
	if err := mfs.WriteFile("/m/model.tflite", make([]byte, 12), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	info, err := mfs.Stat("/m/model.tflite")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Name() != "model.tflite" || info.Size() != 12 || info.IsDir() {
		t.Errorf("unexpected file info: name=%s size=%d dir=%v", info.Name(), info.Size(), info.IsDir())
	}

	info, err = mfs.Stat("/m")
	if err != nil {
		t.Fatalf("Stat dir failed: %v", err)
	}
	if !info.IsDir() {
		t.Error("expected /m to be a directory")
	}
}

func TestMemoryFileSystem_MkdirAllOverFile(t *testing.T) {
	mfs := NewMemoryFileSystem()
	if err := mfs.WriteFile("/var/binbot", []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := mfs.MkdirAll("/var/binbot/journal", 0o755); !errors.Is(err, fs.ErrExist) {
		t.Errorf("MkdirAll error = %v, want ErrExist", err)
	}
	if err := mfs.WriteFile("/var", []byte("x"), 0o644); !errors.Is(err, fs.ErrExist) {
		t.Errorf("WriteFile over dir error = %v, want ErrExist", err)
	}
}

func TestEnsureParent(t *testing.T) {
	tests := []struct {
		path     string
		wantDirs []string
	}{
		{"", []string{"/"}},
		{":memory:", []string{"/"}},
		{"file:binbot?mode=memory", []string{"/"}},
		{"binbot.db", []string{"/"}},
		{"/var/lib/binbot/journal.db", []string{"/", "/var", "/var/lib", "/var/lib/binbot"}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			mfs := NewMemoryFileSystem()
			if err := EnsureParent(mfs, tt.path); err != nil {
				t.Fatalf("EnsureParent(%q) failed: %v", tt.path, err)
			}
			if got := mfs.Dirs(); !reflect.DeepEqual(got, tt.wantDirs) {
				t.Errorf("Dirs() = %v, want %v", got, tt.wantDirs)
			}
		})
	}
}
