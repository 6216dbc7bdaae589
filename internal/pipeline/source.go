package pipeline

import "autosub/internal/watcher"

// StaticSource feeds a fixed list of paths and then closes, which makes the
// coordinator drain and return. Used for one-shot scans.
type StaticSource struct {
	events chan watcher.FileEvent
}

// NewStaticSource builds a source over the given paths.
func NewStaticSource(paths []string) *StaticSource {
	events := make(chan watcher.FileEvent, len(paths))
	for i, path := range paths {
		events <- watcher.FileEvent{Path: path, Kind: watcher.KindCreated, Sequence: uint64(i + 1)}
	}
	close(events)
	return &StaticSource{events: events}
}

// Events returns the pre-filled event channel.
func (s *StaticSource) Events() <-chan watcher.FileEvent { return s.events }

// Release is a no-op; static sources never re-deliver a path.
func (s *StaticSource) Release(string) {}
