//go:generate go run go.uber.org/mock/mockgen -source=fetcher.go -destination=mock/fetcher.go
package timeline

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/exp/slices"

	"github.com/totegamma/concurrent-client/core"
)

var tracer = otel.Tracer("timeline")

// StreamReader is the slice of the API client the fetcher needs.
type StreamReader interface {
	GetStreamRecent(ctx context.Context, streams []string) ([]core.StreamElement, error)
	GetStreamRanged(ctx context.Context, streams []string, until string, since string) ([]core.StreamElement, error)
}

// State is the lifecycle of one timeline view.
type State int

const (
	Idle State = iota
	Loading
	Loaded
	LoadingMore
	Exhausted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case LoadingMore:
		return "loadingMore"
	case Exhausted:
		return "exhausted"
	}
	return "unknown"
}

// Element is a buffered timeline entry tagged with the wall-clock time
// it arrived. The tag only drives consumer refreshes; it carries no
// ordering meaning.
type Element struct {
	core.StreamElement
	LastUpdated time.Time
}

// Fetcher presents a logically merged, incrementally loadable timeline
// over a set of streams. At most one load is in flight per instance;
// further load requests while one is running are no-ops.
type Fetcher struct {
	reader StreamReader

	mu         sync.Mutex
	state      State
	streams    []string
	buffer     []Element
	seen       map[string]bool
	isFetching bool
}

// NewFetcher creates a fetcher over the given reader.
func NewFetcher(reader StreamReader) *Fetcher {
	return &Fetcher{
		reader: reader,
		state:  Idle,
		seen:   make(map[string]bool),
	}
}

// State returns the current lifecycle state.
func (f *Fetcher) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Elements returns a copy of the buffered elements.
func (f *Fetcher) Elements() []Element {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.buffer)
}

// Listen replaces the subscribed stream set, clears the buffer and
// performs the initial load. Changing the set also leaves Exhausted.
func (f *Fetcher) Listen(ctx context.Context, streams []string) error {
	ctx, span := tracer.Start(ctx, "Fetcher.Listen")
	defer span.End()

	f.mu.Lock()
	if f.isFetching {
		f.mu.Unlock()
		return nil
	}
	f.streams = slices.Clone(streams)
	f.buffer = nil
	f.seen = make(map[string]bool)
	f.state = Loading
	f.isFetching = true
	f.mu.Unlock()

	elements, err := f.reader.GetStreamRecent(ctx, streams)
	now := time.Now()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.isFetching = false

	if err != nil {
		span.RecordError(err)
		f.state = Idle
		return err
	}

	for _, element := range elements {
		if f.seen[element.ID] {
			continue
		}
		f.seen[element.ID] = true
		f.buffer = append(f.buffer, Element{StreamElement: element, LastUpdated: now})
	}
	f.state = Loaded

	return nil
}

// ReadMore loads the next older page, using the oldest buffered
// timestamp as the upper bound. An empty page after dedup means the
// timeline is exhausted. No-op unless currently Loaded with data.
func (f *Fetcher) ReadMore(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Fetcher.ReadMore")
	defer span.End()

	f.mu.Lock()
	if f.isFetching || f.state != Loaded || len(f.buffer) == 0 {
		f.mu.Unlock()
		return nil
	}
	until := oldestTimestamp(f.buffer)
	if until == "" {
		f.mu.Unlock()
		return nil
	}
	streams := slices.Clone(f.streams)
	f.state = LoadingMore
	f.isFetching = true
	f.mu.Unlock()

	elements, err := f.reader.GetStreamRanged(ctx, streams, until, "")
	now := time.Now()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.isFetching = false

	if err != nil {
		span.RecordError(err)
		f.state = Loaded
		return err
	}

	appended := 0
	for _, element := range elements {
		if f.seen[element.ID] {
			continue
		}
		f.seen[element.ID] = true
		f.buffer = append(f.buffer, Element{StreamElement: element, LastUpdated: now})
		appended++
	}

	if appended == 0 {
		f.state = Exhausted
	} else {
		f.state = Loaded
	}

	return nil
}

func oldestTimestamp(buffer []Element) string {
	oldest := ""
	var value float64
	for _, element := range buffer {
		if element.Timestamp == "" {
			continue
		}
		parsed, err := strconv.ParseFloat(element.Timestamp, 64)
		if err != nil {
			continue
		}
		if oldest == "" || parsed < value {
			oldest = element.Timestamp
			value = parsed
		}
	}
	return oldest
}
