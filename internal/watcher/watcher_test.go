package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
	ch    chan string
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan string, 10)}
}

func (r *recorder) onChange(path string) {
	r.mu.Lock()
	r.paths = append(r.paths, path)
	r.mu.Unlock()
	r.ch <- path
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.paths)
}

func startWatcher(t *testing.T, root string, exts []string, rec *recorder) *Watcher {
	t.Helper()
	w, err := New(Options{
		Root:       root,
		Extensions: exts,
		Ignore:     []string{"node_modules", "__pycache__"},
		Debounce:   50 * time.Millisecond,
	}, rec.onChange, nil)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

func TestWatcherReportsMatchingChange(t *testing.T) {
	root := t.TempDir()
	rec := newRecorder()
	startWatcher(t, root, []string{".py"}, rec)

	target := filepath.Join(root, "main.py")
	if err := os.WriteFile(target, []byte("print(1)"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-rec.ch:
		if got != target {
			t.Errorf("Expected %s, got %s", target, got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Expected a change notification")
	}
}

func TestWatcherDebouncesBursts(t *testing.T) {
	root := t.TempDir()
	rec := newRecorder()
	w, err := New(Options{Root: root, Debounce: 300 * time.Millisecond}, rec.onChange, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte{byte(i)}, 0644); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case <-rec.ch:
	case <-time.After(3 * time.Second):
		t.Fatal("Expected a change notification")
	}
	time.Sleep(500 * time.Millisecond)
	if n := rec.count(); n != 1 {
		t.Errorf("Expected 1 debounced notification, got %d", n)
	}
}

func TestWatcherIgnoresFilteredPaths(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{".git", "node_modules", "__pycache__"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0755); err != nil {
			t.Fatal(err)
		}
	}
	rec := newRecorder()
	startWatcher(t, root, []string{".py"}, rec)

	writes := []string{
		filepath.Join(root, "notes.txt"),
		filepath.Join(root, ".git", "x.py"),
		filepath.Join(root, "node_modules", "x.py"),
		filepath.Join(root, "__pycache__", "x.py"),
	}
	for _, p := range writes {
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case got := <-rec.ch:
		t.Errorf("Expected no notification, got %s", got)
	case <-time.After(400 * time.Millisecond):
	}
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	root := t.TempDir()
	rec := newRecorder()
	startWatcher(t, root, []string{".go"}, rec)

	sub := filepath.Join(root, "pkg")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	// Give the watcher a moment to register the new directory.
	time.Sleep(100 * time.Millisecond)

	target := filepath.Join(sub, "x.go")
	if err := os.WriteFile(target, []byte("package pkg"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-rec.ch:
		if got != target {
			t.Errorf("Expected %s, got %s", target, got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Expected a change notification from the new directory")
	}
}

func TestWatcherMissingRoot(t *testing.T) {
	_, err := New(Options{Root: filepath.Join(t.TempDir(), "missing")}, func(string) {}, nil)
	if err == nil {
		t.Fatal("Expected error for missing root")
	}
}

func TestWatcherCloseIsIdempotent(t *testing.T) {
	w, err := New(Options{Root: t.TempDir()}, func(string) {}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Expected no error on second close, got %v", err)
	}
}
