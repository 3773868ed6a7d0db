package transport

import (
	"context"
	"log"

	"github.com/fsnotify/fsnotify"
)

// Watcher wakes a drain loop on write instead of waiting for the next tick.
// It is a latency optimization layered on top of Streams.Drain, never a
// substitute for it: fsnotify can coalesce or drop events under load, so
// the tick-driven drain remains the source of truth and this only shortens
// the average wait between an agent writing an event and the supervisor
// noticing it.
type Watcher struct {
	fsw     *fsnotify.Watcher
	Changed chan string // agent name whose stream changed
}

// NewWatcher watches dir for writes to "<agent>.events" files.
func NewWatcher(dir string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	w := &Watcher{fsw: fsw, Changed: make(chan string, 64)}
	return w, nil
}

// Run forwards write events until ctx is cancelled. Errors from fsnotify
// are logged and ignored — a watcher failure degrades the system to pure
// polling, it does not stop the supervisor.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fsw.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			agent := agentFromEventPath(ev.Name)
			if agent == "" {
				continue
			}
			select {
			case w.Changed <- agent:
			default:
				// Channel full: a tick will pick this stream up anyway.
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("[transport] fsnotify error: %v", err)
		}
	}
}

func agentFromEventPath(path string) string {
	const suffix = ".events"
	base := path
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			base = path[i+1:]
			break
		}
	}
	if len(base) <= len(suffix) || base[len(base)-len(suffix):] != suffix {
		return ""
	}
	return base[:len(base)-len(suffix)]
}
