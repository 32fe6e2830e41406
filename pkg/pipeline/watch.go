package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
)

// DefaultSettle is how long Watch waits for a burst of writes to end.
const DefaultSettle = 100 * time.Millisecond

// ChangeFunc receives the new contents of a watched file, or the error that
// stopped it from being read.
type ChangeFunc func(source string, err error)

// Watch calls onChange with the contents of path once at start and again
// after every write. It watches the parent directory so editors that save by
// renaming a temp file are seen. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, settle time.Duration, onChange ChangeFunc) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("pipeline: watch %s: %w", path, err)
	}
	if settle <= 0 {
		settle = DefaultSettle
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("pipeline: watch %s: %w", path, err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("pipeline: watch %s: %w", path, err)
	}

	load := func() {
		if ctx.Err() != nil {
			return
		}
		data, err := os.ReadFile(abs)
		onChange(string(data), err)
	}
	load()

	debounced := debounce.New(settle)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				debounced(load)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			onChange("", fmt.Errorf("pipeline: watch %s: %w", path, err))
		}
	}
}
