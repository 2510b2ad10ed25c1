package usecases

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/propmap/propmap/internal/core/domain"
	"github.com/propmap/propmap/internal/core/ports"
	"github.com/propmap/propmap/internal/pkg/geospatial"
	"github.com/propmap/propmap/internal/pkg/metrics"
	"github.com/propmap/propmap/internal/urlcodec"
)

// DefaultDebounce is the quiet period after the last move before the URL is
// synced, for engines without a settle signal.
const DefaultDebounce = 500 * time.Millisecond

// SyncState is the lifecycle of a SyncController.
type SyncState int

const (
	StateUninitialized SyncState = iota
	StateHydrating
	StateSynced
)

func (s SyncState) String() string {
	switch s {
	case StateHydrating:
		return "hydrating"
	case StateSynced:
		return "synced"
	default:
		return "uninitialized"
	}
}

// Timer is a pending debounce.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it once wrapped.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SyncSnapshot is the query input after a state change.
type SyncSnapshot struct {
	Viewport domain.Viewport
	Bounds   domain.BoundingBox
	Filters  domain.FilterSet
	URL      string
}

// SyncOptions configures a SyncController. Zero values take defaults.
type SyncOptions struct {
	Debounce  time.Duration
	AfterFunc AfterFunc
	// Initial is the camera used when the URL carries no bounds.
	Initial *domain.Viewport
	// OnChange runs after every change to viewport, bounds or committed
	// filters, outside the controller lock.
	OnChange func(ctx context.Context, snap SyncSnapshot)
	Logger   *slog.Logger
}

// SyncController keeps the viewport, the committed filters and the address
// bar consistent without feedback loops. The last URL it wrote (or hydrated
// from) is recorded before the navigation call returns; an incoming URL equal
// to it is an echo and is ignored, and an outgoing URL equal to it is never
// written.
type SyncController struct {
	engine ports.MapEngine
	nav    ports.Navigator
	store  *FilterStore
	bounds *BoundsService
	opts   SyncOptions
	log    *slog.Logger

	mu       sync.Mutex
	state    SyncState
	ctx      context.Context
	viewport domain.Viewport
	box      domain.BoundingBox
	lastURL  string
	pending  Timer
	gen      uint64
}

// NewSyncController wires a controller. engine may be nil until the client
// map is mounted; bounds are approximated meanwhile.
func NewSyncController(engine ports.MapEngine, nav ports.Navigator, store *FilterStore, opts SyncOptions) *SyncController {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = realAfterFunc
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	vp := domain.DefaultViewport()
	if opts.Initial != nil {
		vp = opts.Initial.Clamp()
	}
	return &SyncController{
		engine:   engine,
		nav:      nav,
		store:    store,
		bounds:   NewBoundsService(engine, opts.Logger),
		opts:     opts,
		log:      opts.Logger,
		ctx:      context.Background(),
		viewport: vp,
		box:      geospatial.ApproximateBounds(vp),
	}
}

// Mount decodes the current URL once into the filter store and viewport.
// Calling it again returns the current snapshot.
func (c *SyncController) Mount(ctx context.Context) SyncSnapshot {
	c.mu.Lock()
	if c.state != StateUninitialized {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap
	}
	c.state = StateHydrating
	c.ctx = context.WithoutCancel(ctx)

	raw := c.nav.CurrentURL()
	st := urlcodec.Decode(raw)
	c.store.SetCommitted(st.Filters)
	c.store.DiscardDraft()
	c.lastURL = urlcodec.Canonical(raw)
	if st.Bounds != nil {
		c.box = *st.Bounds
		c.viewport = geospatial.ViewportFromBounds(*st.Bounds)
	}
	vp := c.viewport
	c.mu.Unlock()

	if st.Bounds == nil {
		box := c.bounds.Bounds(ctx, vp)
		c.mu.Lock()
		c.box = box
		c.mu.Unlock()
	} else {
		c.flyTo(ctx, vp, 0)
	}

	c.mu.Lock()
	c.state = StateSynced
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.log.DebugContext(ctx, "sync mounted", "url", snap.URL, "zoom", snap.Viewport.Zoom)
	c.notify(ctx, snap)
	return snap
}

// OnMove records an intermediate camera position. Without a native settle
// signal every move restarts the debounce; the URL is synced when it fires.
func (c *SyncController) OnMove(vp domain.Viewport) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.viewport = vp.Clamp()
	if c.state != StateSynced || c.supportsSettle() {
		return
	}
	if c.pending != nil {
		c.pending.Stop()
	}
	c.gen++
	gen := c.gen
	c.pending = c.opts.AfterFunc(c.opts.Debounce, func() {
		c.mu.Lock()
		stale := gen != c.gen
		ctx := c.ctx
		c.mu.Unlock()
		if !stale {
			c.OnSettled(ctx)
		}
	})
}

// OnSettled recomputes bounds for the current camera and syncs the URL.
func (c *SyncController) OnSettled(ctx context.Context) SyncSnapshot {
	c.mu.Lock()
	if c.state != StateSynced {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap
	}
	c.cancelPendingLocked()
	vp := c.viewport
	c.mu.Unlock()

	box := c.bounds.Bounds(ctx, vp)

	c.mu.Lock()
	c.box = box
	c.writeLocked(ctx, "viewport")
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(ctx, snap)
	return snap
}

// Commit applies the draft and syncs the URL.
func (c *SyncController) Commit(ctx context.Context) SyncSnapshot {
	c.store.CommitDraft()
	return c.afterFilterChange(ctx, "filters")
}

// ClearAll drops every filter, committed and draft, and syncs the URL.
func (c *SyncController) ClearAll(ctx context.Context) SyncSnapshot {
	c.store.ClearAll()
	return c.afterFilterChange(ctx, "clear")
}

// DiscardDraft drops pending edits. Nothing committed changes, so the URL is
// left alone.
func (c *SyncController) DiscardDraft() {
	c.store.DiscardDraft()
}

// OnNavigate handles an address bar change the controller did not cause
// (back/forward, pasted link). It reports whether state was reloaded; echoes
// of the controller's own writes return false.
func (c *SyncController) OnNavigate(ctx context.Context, raw string) bool {
	canonical := urlcodec.Canonical(raw)

	c.mu.Lock()
	if c.state != StateSynced {
		c.mu.Unlock()
		return false
	}
	if canonical == c.lastURL {
		c.mu.Unlock()
		metrics.EchoesSuppressed.Inc()
		return false
	}

	st := urlcodec.Decode(raw)
	c.lastURL = canonical
	c.store.SetCommitted(st.Filters)
	c.store.DiscardDraft()
	if st.Bounds != nil {
		c.cancelPendingLocked()
		c.box = *st.Bounds
		c.viewport = geospatial.ViewportFromBounds(*st.Bounds)
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.log.DebugContext(ctx, "external navigation", "url", canonical)
	if st.Bounds != nil {
		c.flyTo(ctx, snap.Viewport, 0)
	}
	c.notify(ctx, snap)
	return true
}

// FlyTo moves the camera programmatically. The URL follows when the engine
// reports the move settled.
func (c *SyncController) FlyTo(ctx context.Context, vp domain.Viewport, duration time.Duration) {
	vp = vp.Clamp()
	c.mu.Lock()
	c.viewport = vp
	c.mu.Unlock()
	c.flyTo(ctx, vp, duration)
}

// Close cancels any pending debounce.
func (c *SyncController) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelPendingLocked()
}

func (c *SyncController) State() SyncState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *SyncController) Snapshot() SyncSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// LastURL is the canonical query string the controller last wrote or hydrated.
func (c *SyncController) LastURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastURL
}

func (c *SyncController) afterFilterChange(ctx context.Context, trigger string) SyncSnapshot {
	c.mu.Lock()
	if c.state == StateSynced {
		c.writeLocked(ctx, trigger)
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(ctx, snap)
	return snap
}

// writeLocked encodes committed filters and the current box over the
// foreign keys of the live URL and replaces the history entry if the result
// differs from the last URL once both are canonical.
func (c *SyncController) writeLocked(ctx context.Context, trigger string) {
	box := c.box
	next := urlcodec.Encode(urlcodec.State{
		Filters: c.store.Committed(),
		Bounds:  &box,
	}, urlcodec.Foreign(c.nav.CurrentURL()))

	// Compared and remembered in canonical form: committed values the codec
	// would drop on decode must not make the echo look external.
	canonical := urlcodec.Canonical(next)
	if canonical == c.lastURL {
		metrics.URLWritesSkipped.WithLabelValues(trigger).Inc()
		return
	}
	c.lastURL = canonical
	metrics.URLWrites.WithLabelValues(trigger).Inc()

	if err := c.nav.Replace(ctx, next); err != nil {
		c.log.WarnContext(ctx, "replace url failed", "error", err, "trigger", trigger)
	}
}

func (c *SyncController) cancelPendingLocked() {
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
	c.gen++
}

func (c *SyncController) supportsSettle() bool {
	return c.engine != nil && c.engine.SupportsSettle()
}

func (c *SyncController) flyTo(ctx context.Context, vp domain.Viewport, d time.Duration) {
	if c.engine == nil {
		return
	}
	if err := c.engine.FlyTo(ctx, vp.Center(), vp.Zoom, d); err != nil {
		c.log.WarnContext(ctx, "fly to failed", "error", err)
	}
}

func (c *SyncController) snapshotLocked() SyncSnapshot {
	return SyncSnapshot{
		Viewport: c.viewport,
		Bounds:   c.box,
		Filters:  c.store.Committed(),
		URL:      c.lastURL,
	}
}

func (c *SyncController) notify(ctx context.Context, snap SyncSnapshot) {
	if c.opts.OnChange != nil {
		c.opts.OnChange(ctx, snap)
	}
}
