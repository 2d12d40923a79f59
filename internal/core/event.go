package core

import "time"

// EventKind classifies a filesystem event on the watched directory.
type EventKind int

const (
	EventCreated EventKind = iota
	EventModified
	EventMoved
	EventDeleted
)

func (k EventKind) String() string {
	switch k {
	case EventCreated:
		return "created"
	case EventModified:
		return "modified"
	case EventMoved:
		return "moved"
	case EventDeleted:
		return "deleted"
	}
	return "unknown"
}

// WatchEvent is one observation from the Watcher. Path is always absolute.
type WatchEvent struct {
	Kind      EventKind
	Path      string
	Timestamp time.Time
}

// ResultFile is a candidate file that passed the pattern filter.
type ResultFile struct {
	LocalPath string
	Filename  string
	SizeBytes int64
	Hint      string // empty when the hint rule did not match
	Label     string
}
