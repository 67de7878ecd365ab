// Package cartstore keeps the signed-in user's cart in sync with the
// backend. The backend owns the cart: every mutation replaces the local
// copy with the cart it returns, totals included.
package cartstore

import (
	"context"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"
	"heritagecoffee/pkg/domain"
	"heritagecoffee/pkg/session"
)

type State int

const (
	StateUnauthenticated State = iota
	StateLoading
	StateReady
	StateMutating
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateMutating:
		return "mutating"
	}
	return "unknown"
}

// CartService is the subset of the cart client the store needs.
type CartService interface {
	ByUserID(ctx context.Context, userID int64) (*domain.Cart, error)
	AddProduct(ctx context.Context, cartID, productID int64) (*domain.Cart, error)
	RemoveProduct(ctx context.Context, cartID, productID int64) (*domain.Cart, error)
}

// Sessions is the subset of the session store the cart store follows.
type Sessions interface {
	Snapshot() session.Record
	Subscribe(fn session.Listener) (unsubscribe func())
}

// Snapshot is an immutable view of the store.
type Snapshot struct {
	State State
	Cart  *domain.Cart
	// Loading is true while a refresh is outstanding.
	Loading bool
	// InFlight lists products with a pending mutation, oldest first.
	InFlight         []int64
	LoadingProductID int64
	LastError        error
}

// Store is the cart state machine.
type Store struct {
	sessions Sessions
	carts    CartService
	logger   *slog.Logger

	mu            sync.Mutex
	authenticated bool
	cart          *domain.Cart
	refreshing    int
	inFlight      []int64
	lastErr       error
	listeners     map[int]func(Snapshot)
	nextID        int

	ctx      context.Context
	cancel   context.CancelFunc
	unsub    func()
	inflight sync.WaitGroup
}

// New builds a store. Call Start to follow session changes.
func New(sessions Sessions, carts CartService, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		sessions:      sessions,
		carts:         carts,
		logger:        logger,
		authenticated: sessions.Snapshot().IsAuthenticated(),
		listeners:     make(map[int]func(Snapshot)),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start subscribes to session changes. Refreshes triggered by a new
// identity run in the background under ctx until Close.
func (s *Store) Start(ctx context.Context) {
	s.mu.Lock()
	s.cancel()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()
	if s.unsub == nil {
		s.unsub = s.sessions.Subscribe(s.onSession)
	}
}

// Close stops following the session and waits for background refreshes.
func (s *Store) Close() {
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	s.inflight.Wait()
}

// Wait blocks until background refreshes started by session changes
// have finished.
func (s *Store) Wait() {
	s.inflight.Wait()
}

func (s *Store) onSession(prev, next session.Record) {
	if !next.IsAuthenticated() || next.User == nil {
		s.mu.Lock()
		s.authenticated = false
		s.cart = nil
		s.lastErr = nil
		s.mu.Unlock()
		s.notify()
		return
	}
	if prev.IsAuthenticated() && prev.SameIdentity(next) {
		return
	}
	s.mu.Lock()
	s.authenticated = true
	s.cart = nil
	s.lastErr = nil
	ctx := s.ctx
	s.mu.Unlock()
	s.notify()

	s.logger.Debug("session identity changed, refreshing cart", "user_id", next.UserID())
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		_ = s.RefreshCart(ctx)
	}()
}

// RefreshCart reloads the cart of the current user. Without a session the
// cart is cleared and nothing is fetched. On failure the cart is left as
// it was.
func (s *Store) RefreshCart(ctx context.Context) error {
	rec := s.sessions.Snapshot()
	if !rec.IsAuthenticated() || rec.User == nil {
		s.mu.Lock()
		s.authenticated = false
		s.cart = nil
		s.mu.Unlock()
		s.notify()
		return nil
	}

	s.mu.Lock()
	s.authenticated = true
	s.refreshing++
	s.mu.Unlock()
	s.notify()

	cart, err := s.carts.ByUserID(ctx, rec.UserID())

	current := s.sessions.Snapshot()
	s.mu.Lock()
	s.refreshing--
	stale := !current.SameIdentity(rec)
	switch {
	case stale:
	case err != nil:
		s.lastErr = err
	default:
		s.cart = cart.Clone()
		s.lastErr = nil
	}
	s.mu.Unlock()
	s.notify()

	if stale {
		s.logger.Debug("discarding cart for previous session", "user_id", rec.UserID())
		return nil
	}
	if err != nil {
		s.logger.Warn("cart refresh failed", "user_id", rec.UserID(), "err", err)
		return err
	}
	return nil
}

// AddToCart adds one unit of productID. It does nothing until a cart has
// been loaded.
func (s *Store) AddToCart(ctx context.Context, productID int64) error {
	return s.mutate(ctx, "add", productID, s.carts.AddProduct)
}

// RemoveFromCart removes productID. It does nothing until a cart has been
// loaded.
func (s *Store) RemoveFromCart(ctx context.Context, productID int64) error {
	return s.mutate(ctx, "remove", productID, s.carts.RemoveProduct)
}

func (s *Store) mutate(ctx context.Context, op string, productID int64, call func(context.Context, int64, int64) (*domain.Cart, error)) error {
	rec := s.sessions.Snapshot()
	s.mu.Lock()
	if s.cart == nil {
		s.mu.Unlock()
		return nil
	}
	cartID := s.cart.ID
	s.inFlight = append(s.inFlight, productID)
	s.mu.Unlock()
	s.notify()

	cart, err := call(ctx, cartID, productID)

	current := s.sessions.Snapshot()
	s.mu.Lock()
	s.inFlight = removeOne(s.inFlight, productID)
	if err != nil {
		s.lastErr = err
	} else if current.SameIdentity(rec) {
		s.cart = cart.Clone()
		s.lastErr = nil
	}
	s.mu.Unlock()
	s.notify()

	if err != nil {
		s.logger.Warn("cart mutation failed", "op", op, "cart_id", cartID, "product_id", productID, "err", err)
		return err
	}
	s.logger.Info("cart updated", "op", op, "cart_id", cartID, "product_id", productID)
	return nil
}

func removeOne(ids []int64, id int64) []int64 {
	for i := len(ids) - 1; i >= 0; i-- {
		if ids[i] == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}

// Cart returns a copy of the current cart, or nil.
func (s *Store) Cart() *domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Clone()
}

// Total is the last total returned by the backend, zero without a cart.
func (s *Store) Total() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cart == nil {
		return decimal.Zero
	}
	return s.cart.Total
}

// LoadingProductID returns the most recently targeted product that still
// has a pending mutation, or 0.
func (s *Store) LoadingProductID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.inFlight) == 0 {
		return 0
	}
	return s.inFlight[len(s.inFlight)-1]
}

// IsPending reports whether productID has a mutation in flight.
func (s *Store) IsPending(productID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.inFlight {
		if id == productID {
			return true
		}
	}
	return false
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Cart:      s.cart.Clone(),
		Loading:   s.refreshing > 0,
		InFlight:  append([]int64(nil), s.inFlight...),
		LastError: s.lastErr,
	}
	if n := len(s.inFlight); n > 0 {
		snap.LoadingProductID = s.inFlight[n-1]
	}
	switch {
	case !s.authenticated:
		snap.State = StateUnauthenticated
	case len(s.inFlight) > 0:
		snap.State = StateMutating
	case s.refreshing > 0:
		snap.State = StateLoading
	default:
		snap.State = StateReady
	}
	return snap
}

// Subscribe registers fn for every state change.
func (s *Store) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Store) notify() {
	s.mu.Lock()
	snap := s.snapshotLocked()
	fns := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}
