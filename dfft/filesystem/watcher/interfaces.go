package watcher

import (
	"time"
)

// EventKind represents the broad type of a raw file system event
type EventKind int

const (
	// EventCreate represents file/directory creation
	EventCreate EventKind = iota
	// EventModify represents content, metadata or name changes
	EventModify
	// EventRemove represents file/directory removal
	EventRemove
	// EventAccess represents reads that change nothing
	EventAccess
	// EventOther represents anything the platform could not classify
	EventOther
)

// String returns a human-readable representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventCreate:
		return "create"
	case EventModify:
		return "modify"
	case EventRemove:
		return "remove"
	case EventAccess:
		return "access"
	case EventOther:
		return "other"
	default:
		return "unknown"
	}
}

// SubKind refines an EventKind. Create and Remove use SubFile/SubFolder,
// Modify uses SubData/SubMetadata/SubName. SubAny means the source could not
// tell.
type SubKind int

const (
	SubAny SubKind = iota
	SubFile
	SubFolder
	SubData
	SubMetadata
	SubName
	SubOther
)

// String returns a human-readable representation of the sub kind.
func (s SubKind) String() string {
	switch s {
	case SubAny:
		return "any"
	case SubFile:
		return "file"
	case SubFolder:
		return "folder"
	case SubData:
		return "data"
	case SubMetadata:
		return "metadata"
	case SubName:
		return "name"
	case SubOther:
		return "other"
	default:
		return "unknown"
	}
}

// Event represents a raw file system event. Paths are absolute.
type Event struct {
	Kind      EventKind
	Sub       SubKind
	Paths     []string
	Timestamp time.Time
}

// NewEvent builds an event stamped with the current time.
func NewEvent(kind EventKind, sub SubKind, paths ...string) Event {
	return Event{
		Kind:      kind,
		Sub:       sub,
		Paths:     paths,
		Timestamp: time.Now(),
	}
}

// Source delivers debounced batches of raw events
type Source interface {
	// Batches returns settled event batches in delivery order
	Batches() <-chan []Event

	// Errors returns errors encountered while watching
	Errors() <-chan error

	// Close stops watching and closes both channels
	Close() error
}

// SourceFactory establishes a Source for an already canonical root
type SourceFactory func(root string, config WatcherConfig, excludeDir func(rel string) bool) (Source, error)

// Debouncer handles event debouncing
type Debouncer interface {
	// Add adds an event to be debounced
	Add(event Event)

	// Events returns debounced batches
	Events() <-chan []Event

	// Flush hands over pending events immediately
	Flush()

	// Close stops the debouncer
	Close()
}

// WatcherConfig holds configuration for a watch session
type WatcherConfig struct {
	// DebounceDelay is the quiet period that settles a batch
	DebounceDelay time.Duration

	// MaxDebounceDelay bounds how long a batch may keep growing
	MaxDebounceDelay time.Duration

	// QueueCapacity is the number of settled batches buffered before the
	// debouncer blocks
	QueueCapacity int

	// MaxFileSize is the largest file that is read and diffed
	MaxFileSize int64

	// MaxPrepopulateFiles caps the startup walk
	MaxPrepopulateFiles int

	// PrepopulateWorkers is the number of concurrent reads during the walk
	PrepopulateWorkers int
}
