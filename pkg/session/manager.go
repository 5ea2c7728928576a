package session

import (
	"context"
	"maps"
	"sync"

	"github.com/zfogg/feedline/pkg/feed"
	"github.com/zfogg/feedline/pkg/logger"
	"github.com/zfogg/feedline/pkg/pagecache"
	"github.com/zfogg/feedline/pkg/pagination"
)

// Options configures a Manager.
type Options struct {
	Observer  feed.Observer
	Threshold float64
}

// ListOptions configures one list opened through a Manager.
type ListOptions[T any] struct {
	Limit int
	Key   pagecache.KeyFunc[T]

	// Threshold overrides the manager's sentinel threshold, for hosts
	// measuring distance in other units.
	Threshold float64

	// OnChange is called after a result is applied and after the list is
	// re-keyed to a new identity.
	OnChange func()

	// AutoLoad requests the first page whenever an identity becomes
	// available, including at open.
	AutoLoad bool
}

type liveList interface {
	rebind(identity string)
	markFresh(n int)
	listKind() string
	close()
}

// Manager owns the page cache of one session scope and keeps every list
// opened through it keyed by the current identity. Lists are disabled
// while no identity is present.
type Manager struct {
	ctx       context.Context
	cancel    context.CancelFunc
	provider  Provider
	store     *pagecache.Store
	observer  feed.Observer
	threshold float64

	// rekey serializes identity changes.
	rekey sync.Mutex

	mu          sync.Mutex
	token       string
	identity    string
	lists       map[string]liveList
	unsubscribe func()
}

// NewManager binds a manager to provider. Background loads run under ctx
// until Close.
func NewManager(ctx context.Context, provider Provider, opts Options) *Manager {
	ctx, cancel := context.WithCancel(ctx)
	m := &Manager{
		ctx:       ctx,
		cancel:    cancel,
		provider:  provider,
		store:     pagecache.NewStore(),
		observer:  opts.Observer,
		threshold: opts.Threshold,
		lists:     make(map[string]liveList),
	}
	if token, ok := provider.CurrentToken(); ok {
		m.token = token
		m.identity = IdentityKey(token)
	}
	m.unsubscribe = provider.Subscribe(m.onToken)
	return m
}

func (m *Manager) onToken(token string) {
	m.rekey.Lock()
	defer m.rekey.Unlock()

	identity := IdentityKey(token)

	m.mu.Lock()
	if token == m.token {
		m.mu.Unlock()
		return
	}
	old := m.identity
	m.token = token
	m.identity = identity
	if old == identity {
		m.mu.Unlock()
		logger.Debug("Session token refreshed", "identity", identity)
		return
	}
	lists := make([]liveList, 0, len(m.lists))
	for _, l := range m.lists {
		lists = append(lists, l)
	}
	m.mu.Unlock()

	if old != "" {
		n := m.store.DropIdentity(old)
		logger.Info("Session identity changed", "from", old, "to", identity, "dropped", n)
	} else {
		logger.Info("Session identity available", "identity", identity)
	}

	for _, l := range lists {
		l.rebind(identity)
	}
	logger.Debug("Cached lists after identity change", "keys", m.store.Keys())
}

// Identity returns the current identity key, empty when signed out.
func (m *Manager) Identity() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity
}

// Active reports whether a session is present.
func (m *Manager) Active() bool {
	return m.Identity() != ""
}

func (m *Manager) Store() *pagecache.Store {
	return m.store
}

// Lists returns the number of open lists.
func (m *Manager) Lists() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lists)
}

// MarkFresh flags every open list of kind as having n newer items.
func (m *Manager) MarkFresh(kind string, n int) int {
	m.mu.Lock()
	var matched []liveList
	for _, l := range m.lists {
		if l.listKind() == kind {
			matched = append(matched, l)
		}
	}
	m.mu.Unlock()

	for _, l := range matched {
		l.markFresh(n)
	}
	return len(matched)
}

// Close closes every open list and detaches from the provider.
func (m *Manager) Close() {
	m.unsubscribe()
	m.cancel()

	m.mu.Lock()
	lists := make([]liveList, 0, len(m.lists))
	for _, l := range m.lists {
		lists = append(lists, l)
	}
	m.mu.Unlock()

	for _, l := range lists {
		l.close()
	}
	m.store.Reset()
}

func (m *Manager) release(id string, key *pagecache.Key) {
	m.mu.Lock()
	delete(m.lists, id)
	m.mu.Unlock()
	if key != nil {
		m.store.Drop(*key)
	}
}

type list[T any] struct {
	m        *Manager
	kind     string
	filters  map[string]string
	keyFn    pagecache.KeyFunc[T]
	autoLoad bool
	onChange func()
	ctrl     *feed.Controller[T]

	mu  sync.Mutex
	key *pagecache.Key
}

// collection installs an empty collection for identity. Without an
// identity the collection is detached and never cached.
func (l *list[T]) collection(identity string) *pagecache.Collection[T] {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.key != nil {
		l.m.store.Drop(*l.key)
		l.key = nil
	}
	if identity == "" {
		return pagecache.NewCollection(l.keyFn)
	}
	key := pagecache.NewKey(l.kind, identity, l.filters)
	l.key = &key
	return pagecache.Replace(l.m.store, key, l.keyFn)
}

func (l *list[T]) currentKey() *pagecache.Key {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.key
}

func (l *list[T]) rebind(identity string) {
	l.ctrl.Rebind(l.collection(identity), identity != "")
	if l.onChange != nil {
		l.onChange()
	}
	if identity != "" && l.autoLoad {
		l.ctrl.Load(l.m.ctx)
	}
}

func (l *list[T]) markFresh(n int)  { l.ctrl.MarkFresh(n) }
func (l *list[T]) listKind() string { return l.kind }
func (l *list[T]) close()           { l.ctrl.Close() }

// Open creates a list of kind filtered by filters, reading pages from
// fetcher. The list starts empty under the current identity and is
// disabled until one exists.
func Open[T any](m *Manager, kind string, filters map[string]string, fetcher pagination.Fetcher[T], opts ListOptions[T]) *feed.Controller[T] {
	l := &list[T]{
		m:        m,
		kind:     kind,
		filters:  maps.Clone(filters),
		keyFn:    opts.Key,
		autoLoad: opts.AutoLoad,
		onChange: opts.OnChange,
	}

	threshold := m.threshold
	if opts.Threshold > 0 {
		threshold = opts.Threshold
	}

	m.mu.Lock()
	identity := m.identity
	col := l.collection(identity)

	var ctrl *feed.Controller[T]
	ctrl = feed.New(fetcher, col, feed.Options[T]{
		Kind:      kind,
		Limit:     opts.Limit,
		Threshold: threshold,
		Key:       opts.Key,
		Observer:  m.observer,
		Fresh:     func() *pagecache.Collection[T] { return l.collection(m.Identity()) },
		OnChange:  opts.OnChange,
		OnClose:   func() { m.release(ctrl.ID(), l.currentKey()) },
		Disabled:  identity == "",
	})
	l.ctrl = ctrl
	m.lists[ctrl.ID()] = l
	m.mu.Unlock()

	logger.Debug("Opened list", "kind", kind, "list", ctrl.ID(), "key", pagecache.NewKey(kind, identity, filters).String())

	if identity != "" && opts.AutoLoad {
		ctrl.Load(m.ctx)
	}
	return ctrl
}
