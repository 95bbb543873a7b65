package timeline

import (
	"context"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/totegamma/concurrent-client/core"
)

type scriptedReader struct {
	mu      sync.Mutex
	recent  []core.StreamElement
	pages   [][]core.StreamElement
	rangeds []string
	block   chan struct{}
}

func (r *scriptedReader) GetStreamRecent(ctx context.Context, streams []string) ([]core.StreamElement, error) {
	if r.block != nil {
		<-r.block
	}
	return r.recent, nil
}

func (r *scriptedReader) GetStreamRanged(ctx context.Context, streams []string, until string, since string) ([]core.StreamElement, error) {
	r.mu.Lock()
	r.rangeds = append(r.rangeds, until)
	r.mu.Unlock()
	if r.block != nil {
		<-r.block
	}
	if len(r.pages) == 0 {
		return nil, nil
	}
	page := r.pages[0]
	r.pages = r.pages[1:]
	return page, nil
}

func element(id string, ts string) core.StreamElement {
	return core.StreamElement{ID: id, Timestamp: ts}
}

func TestFetcherLifecycle(t *testing.T) {
	reader := &scriptedReader{
		recent: []core.StreamElement{element("m3", "300"), element("m2", "200")},
		pages: [][]core.StreamElement{
			{element("m2", "200"), element("m1", "100")}, // m2 overlaps the buffer
			{},
		},
	}

	f := NewFetcher(reader)
	ctx := context.Background()

	assert.Equal(t, Idle, f.State())

	err := f.Listen(ctx, []string{"s1"})
	assert.NoError(t, err)
	assert.Equal(t, Loaded, f.State())
	assert.Len(t, f.Elements(), 2)

	err = f.ReadMore(ctx)
	assert.NoError(t, err)
	assert.Equal(t, Loaded, f.State())

	// m2 was filtered as a duplicate, only m1 was appended
	elements := f.Elements()
	assert.Len(t, elements, 3)
	assert.Equal(t, "m1", elements[2].ID)

	// the page was requested with the oldest buffered timestamp
	assert.Equal(t, []string{"200", "100"}, func() []string {
		err = f.ReadMore(ctx)
		assert.NoError(t, err)
		return reader.rangeds
	}())

	// the empty page exhausted the timeline
	assert.Equal(t, Exhausted, f.State())

	// further load requests are no-ops
	err = f.ReadMore(ctx)
	assert.NoError(t, err)
	assert.Equal(t, Exhausted, f.State())

	// a stream-set change restarts the machine
	reader.recent = []core.StreamElement{element("m9", "900")}
	err = f.Listen(ctx, []string{"s2"})
	assert.NoError(t, err)
	assert.Equal(t, Loaded, f.State())
	assert.Len(t, f.Elements(), 1)
}

func TestFetcherSingleInFlight(t *testing.T) {
	reader := &scriptedReader{
		recent: []core.StreamElement{element("m1", "100")},
		block:  make(chan struct{}),
	}

	f := NewFetcher(reader)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		done <- f.Listen(ctx, []string{"s1"})
	}()

	// wait for the initial load to be in flight
	for f.State() != Loading {
		runtime.Gosched()
	}

	// a load-more while loading is a no-op
	err := f.ReadMore(ctx)
	assert.NoError(t, err)
	assert.Equal(t, Loading, f.State())

	close(reader.block)
	assert.NoError(t, <-done)
	assert.Equal(t, Loaded, f.State())
}

func TestFetcherElementsTagged(t *testing.T) {
	reader := &scriptedReader{
		recent: []core.StreamElement{element("m1", "100")},
	}

	f := NewFetcher(reader)
	err := f.Listen(context.Background(), []string{"s1"})
	assert.NoError(t, err)

	elements := f.Elements()
	assert.Len(t, elements, 1)
	assert.False(t, elements[0].LastUpdated.IsZero())
}
