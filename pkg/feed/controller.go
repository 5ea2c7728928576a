// Package feed drives infinite-scroll lists: it turns sentinel proximity
// into page fetches, merges the results into a page collection and tracks
// the fetch lifecycle of one list instance.
package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zfogg/feedline/pkg/logger"
	"github.com/zfogg/feedline/pkg/pagecache"
	"github.com/zfogg/feedline/pkg/pagination"
)

// DefaultThreshold is the sentinel distance, in host units, at which the
// next page is requested.
const DefaultThreshold = 500

// ErrNoRequest is returned by Complete for a request that is not the one
// currently in flight. It signals a caller bug, not a runtime condition.
var ErrNoRequest = errors.New("feed: no such request in flight")

// Options configures a Controller.
type Options[T any] struct {
	Kind      string
	Limit     int
	Threshold float64
	Key       pagecache.KeyFunc[T]
	Observer  Observer

	// Fresh supplies the empty collection used by Reset. Defaults to a
	// detached collection using Key.
	Fresh func() *pagecache.Collection[T]

	// OnChange is called after the async driver applies a result.
	OnChange func()

	// OnClose is called once when the controller is closed.
	OnClose func()

	// Disabled starts the controller gated off; no fetch is issued until
	// SetEnabled(true).
	Disabled bool
}

// Request is one page fetch handed out by Begin and returned to Complete.
type Request struct {
	Cursor *pagination.Cursor
	Limit  int

	generation uint64
}

// Initial reports whether this is the first-page request.
func (r Request) Initial() bool {
	return r.Cursor == nil
}

// Controller is the fetch state machine of one list instance.
type Controller[T any] struct {
	id       string
	kind     string
	fetcher  pagination.Fetcher[T]
	limit    int
	thresh   float64
	observer Observer
	fresh    func() *pagecache.Collection[T]
	onChange func()
	onClose  func()

	mu         sync.Mutex
	collection *pagecache.Collection[T]
	cursors    pagination.CursorLog
	state      State
	loaded     bool
	enabled    bool
	closed     bool
	lastErr    error
	next       *pagination.Cursor
	generation uint64
	inflight   bool
	cancel     context.CancelFunc
	done       chan struct{}
	calls      int
	freshItems int
}

// New returns a controller reading pages from fetcher into col. A nil col
// starts from an empty collection.
func New[T any](fetcher pagination.Fetcher[T], col *pagecache.Collection[T], opts Options[T]) *Controller[T] {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	if opts.Fresh == nil {
		keyFn := opts.Key
		opts.Fresh = func() *pagecache.Collection[T] { return pagecache.NewCollection(keyFn) }
	}
	if col == nil {
		col = opts.Fresh()
	}

	return &Controller[T]{
		id:         uuid.NewString(),
		kind:       opts.Kind,
		fetcher:    fetcher,
		limit:      pagination.NormalizeLimit(opts.Limit),
		thresh:     opts.Threshold,
		observer:   opts.Observer,
		fresh:      opts.Fresh,
		onChange:   opts.OnChange,
		onClose:    opts.OnClose,
		collection: col,
		state:      Idle,
		enabled:    !opts.Disabled,
	}
}

func (c *Controller[T]) ID() string         { return c.id }
func (c *Controller[T]) Kind() string       { return c.kind }
func (c *Controller[T]) Limit() int         { return c.limit }
func (c *Controller[T]) Threshold() float64 { return c.thresh }

// Begin starts a fetch if the list is able to advance: it is enabled, not
// closed, not already fetching, and not in a terminal state. The returned
// request must be handed back to Complete.
func (c *Controller[T]) Begin() (Request, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.beginLocked()
}

func (c *Controller[T]) beginLocked() (Request, bool) {
	if c.closed || !c.enabled {
		return Request{}, false
	}
	switch c.state {
	case Fetching:
		c.observer.TriggerSuppressed(c.kind)
		return Request{}, false
	case Exhausted, Error:
		return Request{}, false
	}
	if c.loaded && c.next == nil {
		return Request{}, false
	}

	c.state = Fetching
	c.inflight = true
	c.calls++
	req := Request{Limit: c.limit, generation: c.generation}
	if c.loaded {
		cur := *c.next
		req.Cursor = &cur
	}
	return req, true
}

// Approach records the sentinel's distance from the viewport edge. Within
// the threshold an idle list moves to NearEnd and immediately begins the
// next fetch.
func (c *Controller[T]) Approach(distance float64) (Request, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if distance > c.thresh {
		return Request{}, false
	}
	switch c.state {
	case Idle:
		if c.closed || !c.enabled {
			return Request{}, false
		}
		c.state = NearEnd
		return c.beginLocked()
	case NearEnd, Fetching:
		return c.beginLocked()
	}
	return Request{}, false
}

// Execute performs the network call for req. It does not touch list state.
func (c *Controller[T]) Execute(ctx context.Context, req Request) (*pagination.Page[T], error) {
	cursor := "<first>"
	if req.Cursor != nil {
		cursor = string(*req.Cursor)
	}
	logger.Debug("Fetching page", "kind", c.kind, "list", c.id, "cursor", cursor, "limit", req.Limit)

	c.observer.FetchStarted(c.kind)
	start := time.Now()
	page, err := c.fetcher.FetchPage(ctx, req.Cursor, req.Limit)
	c.observer.FetchFinished(c.kind, time.Since(start), err)
	return page, err
}

// Complete applies the outcome of req. Results for a request issued before
// the last Reset, Rebind or Close are dropped without error.
func (c *Controller[T]) Complete(req Request, page *pagination.Page[T], fetchErr error) (Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || req.generation != c.generation {
		c.observer.ResultDropped(c.kind)
		logger.Debug("Dropping stale page", "kind", c.kind, "list", c.id)
		return Dropped, nil
	}
	if !c.inflight || c.state != Fetching {
		return Dropped, ErrNoRequest
	}
	c.inflight = false
	c.cancel = nil

	if fetchErr != nil {
		c.state = Error
		c.lastErr = fetchErr
		logger.Warn("Page fetch failed", "kind", c.kind, "list", c.id, "error", fetchErr)
		return Failed, nil
	}

	c.loaded = true
	if page == nil {
		page = &pagination.Page[T]{}
	}
	if page.Malformed() {
		logger.Warn("Malformed page payload", "kind", c.kind, "list", c.id, "items", page.Len())
	}
	before := c.collection.Duplicates()
	c.collection.Append(page)
	if n := c.collection.Duplicates() - before; n > 0 {
		c.observer.DuplicatesDropped(c.kind, n)
		logger.Debug("Page overlapped earlier pages", "kind", c.kind, "list", c.id, "duplicates", n)
	}

	cursor, ok := page.Next()
	if !ok {
		c.next = nil
		c.state = Exhausted
		return Appended, nil
	}
	if err := c.cursors.Record(cursor); err != nil {
		c.next = nil
		c.state = Error
		c.lastErr = err
		logger.Error("Server repeated a cursor", "kind", c.kind, "list", c.id, "cursor", string(cursor))
		return Failed, nil
	}
	c.next = &cursor
	c.state = Idle
	return Appended, nil
}

// Load requests the first page if nothing has been loaded yet.
func (c *Controller[T]) Load(ctx context.Context) bool {
	c.mu.Lock()
	if c.loaded {
		c.mu.Unlock()
		return false
	}
	req, ok := c.beginLocked()
	c.mu.Unlock()
	if !ok {
		return false
	}
	c.run(ctx, req)
	return true
}

// Observe is Approach followed by an asynchronous fetch when one begins.
func (c *Controller[T]) Observe(ctx context.Context, distance float64) bool {
	req, ok := c.Approach(distance)
	if !ok {
		return false
	}
	c.run(ctx, req)
	return true
}

// TriggerNearEnd reports the sentinel at the viewport edge.
func (c *Controller[T]) TriggerNearEnd(ctx context.Context) bool {
	return c.Observe(ctx, 0)
}

func (c *Controller[T]) run(parent context.Context, req Request) {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	c.mu.Lock()
	if c.generation != req.generation {
		c.mu.Unlock()
		cancel()
		close(done)
		return
	}
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()

		page, err := c.Execute(ctx, req)
		outcome, cerr := c.Complete(req, page, err)
		if cerr != nil {
			logger.Error("Completing page fetch", "kind", c.kind, "list", c.id, "error", cerr)
			return
		}
		if outcome != Dropped && c.onChange != nil {
			c.onChange()
		}
	}()
}

// Wait blocks until the fetch started by the async driver, if any, has
// been applied or dropped.
func (c *Controller[T]) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Rebind discards all list state, cancels any in-flight fetch and
// continues with col.
func (c *Controller[T]) Rebind(col *pagecache.Collection[T], enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rebindLocked(col, enabled)
}

func (c *Controller[T]) rebindLocked(col *pagecache.Collection[T], enabled bool) {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.generation++
	c.done = nil
	c.inflight = false
	c.collection = col
	c.cursors.Reset()
	c.state = Idle
	c.loaded = false
	c.lastErr = nil
	c.next = nil
	c.freshItems = 0
	c.enabled = enabled
}

// Reset starts the list over with an empty collection. This is the only
// way out of Exhausted and Error. The list stays gated as it is at the
// moment the new collection is installed.
func (c *Controller[T]) Reset() {
	col := c.fresh()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rebindLocked(col, c.enabled)
}

// SetEnabled gates fetching. Disabling does not clear the list; callers
// that lose the identity must Rebind.
func (c *Controller[T]) SetEnabled(enabled bool) {
	c.mu.Lock()
	c.enabled = enabled
	c.mu.Unlock()
}

// MarkFresh records that the server announced n items newer than the head
// of the list.
func (c *Controller[T]) MarkFresh(n int) {
	c.mu.Lock()
	c.freshItems += n
	c.mu.Unlock()
}

// Close tears the list down. Later results are dropped and no further
// fetch is issued.
func (c *Controller[T]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.generation++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.inflight = false
	onClose := c.onClose
	c.mu.Unlock()

	if onClose != nil {
		onClose()
	}
}

// State returns the current state.
func (c *Controller[T]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Calls returns how many fetches this instance has begun over its lifetime,
// across resets.
func (c *Controller[T]) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// FetchState returns the lifecycle flags of the list.
func (c *Controller[T]) FetchState() FetchState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetchStateLocked()
}

func (c *Controller[T]) fetchStateLocked() FetchState {
	return FetchState{
		State:            c.state,
		IsFetchingNext:   c.state == Fetching && c.loaded,
		IsInitialLoading: !c.loaded && c.enabled && c.lastErr == nil,
		LastError:        c.lastErr,
		Pages:            c.collection.PageCount(),
		Items:            c.collection.Len(),
		FreshItems:       c.freshItems,
		Enabled:          c.enabled,
	}
}

// Items returns the flattened view.
func (c *Controller[T]) Items() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.collection.Items()
}

// Snapshot returns the fetch state and flattened view taken together.
func (c *Controller[T]) Snapshot() Snapshot[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot[T]{FetchState: c.fetchStateLocked(), Items: c.collection.Items()}
}
