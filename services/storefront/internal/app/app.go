// Package app wires the storefront core: persisted session, API clients,
// cart store, catalogue pipeline and subscriptions. Front ends hold one App
// and call its methods; nothing is reached through globals.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"heritagecoffee/pkg/apiclient"
	"heritagecoffee/pkg/domain"
	"heritagecoffee/pkg/kvstore"
	"heritagecoffee/pkg/session"
	"heritagecoffee/services/storefront/internal/authclient"
	"heritagecoffee/services/storefront/internal/cartclient"
	"heritagecoffee/services/storefront/internal/cartstore"
	"heritagecoffee/services/storefront/internal/catalog"
	"heritagecoffee/services/storefront/internal/productclient"
	"heritagecoffee/services/storefront/internal/subscription"
	"heritagecoffee/services/storefront/internal/userclient"
)

var (
	// ErrLoginRequired is returned by actions reserved to signed-in users.
	ErrLoginRequired = subscription.ErrLoginRequired
	// ErrReauthRequired means the backend rejected the token; the session
	// has been cleared and the user must sign in again.
	ErrReauthRequired = errors.New("session expired, please sign in again")
)

// Config holds runtime configuration for the core application.
type Config struct {
	APIBaseURL     string
	RequestTimeout time.Duration
	AcceptLanguage string
	ClientVersion  string
	SearchDebounce time.Duration
	Storage        StorageConfig
	// Backend replaces the driver selected by Storage.
	Backend    kvstore.Backend
	Metrics    *apiclient.Metrics
	HTTPClient *http.Client
	Logger     *slog.Logger
	Now        func() time.Time
}

// App is the storefront core with its injected handles.
type App struct {
	Session       *session.Store
	Cart          *cartstore.Store
	Catalog       *catalog.Pipeline
	Subscriptions *subscription.Service
	API           *apiclient.Client
	Products      *productclient.Client
	Users         *userclient.Client
	Auth          *authclient.Client
	Carts         *cartclient.Client

	backend     kvstore.Backend
	ownsBackend bool
	logger      *slog.Logger
	now         func() time.Time
}

// New opens storage and builds every component.
func New(ctx context.Context, cfg Config) (*App, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	backend := cfg.Backend
	owns := false
	if backend == nil {
		var err error
		backend, err = OpenBackend(ctx, cfg.Storage, logger)
		if err != nil {
			return nil, err
		}
		owns = true
	}

	sess := session.Open(ctx, backend, logger)
	api, err := apiclient.NewClient(apiclient.Options{
		BaseURL:        cfg.APIBaseURL,
		Timeout:        cfg.RequestTimeout,
		AcceptLanguage: cfg.AcceptLanguage,
		ClientVersion:  cfg.ClientVersion,
		Tokens:         sess.PersistedToken,
		Logger:         logger,
		Metrics:        cfg.Metrics,
		HTTPClient:     cfg.HTTPClient,
	})
	if err != nil {
		sess.Close()
		if owns {
			backend.Close()
		}
		return nil, fmt.Errorf("init api client: %w", err)
	}

	a := &App{
		Session:     sess,
		API:         api,
		Products:    productclient.NewClient(api, logger),
		Users:       userclient.NewClient(api),
		Auth:        authclient.NewClient(api),
		Carts:       cartclient.NewClient(api),
		backend:     backend,
		ownsBackend: owns,
		logger:      logger,
		now:         now,
	}
	a.Cart = cartstore.New(sess, a.Carts, logger)
	a.Cart.Start(context.Background())
	a.Catalog = catalog.New(catalog.Options{
		Products:    a.Products,
		QuietPeriod: cfg.SearchDebounce,
		Logger:      logger,
	})
	a.Subscriptions = subscription.NewService(sess, logger)
	return a, nil
}

// Start drops a persisted session whose token has expired, then loads the
// catalogue and the current cart concurrently. Cart failures are logged,
// not returned.
func (a *App) Start(ctx context.Context) error {
	if a.Session.Expired(a.now()) {
		a.logger.Info("persisted session expired, signing out")
		a.Session.Logout(ctx)
	}
	a.Cart.Start(ctx)
	a.Catalog.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Catalog.Load(gctx, "")
	})
	g.Go(func() error {
		if err := a.Cart.RefreshCart(gctx); err != nil {
			if apiclient.IsUnauthorized(err) {
				a.Session.Logout(ctx)
				return nil
			}
			a.logger.Warn("initial cart load failed", "err", err)
		}
		return nil
	})
	return g.Wait()
}

// Close releases watchers and, when it opened it, the storage backend.
func (a *App) Close() error {
	a.Catalog.Close()
	a.Cart.Close()
	a.Session.Close()
	if a.ownsBackend {
		return a.backend.Close()
	}
	return nil
}

// SignIn authenticates and stores the session. The cart is refreshed in
// the background; Cart.Wait blocks until it is loaded.
func (a *App) SignIn(ctx context.Context, email, password string) (domain.User, error) {
	resp, err := a.Auth.SignIn(ctx, domain.SignInRequest{EmailAddress: email, Password: password})
	if err != nil {
		return domain.User{}, err
	}
	a.Session.Login(ctx, resp.Token, resp.User)
	return resp.User, nil
}

// SignUp creates an account without signing in.
func (a *App) SignUp(ctx context.Context, req domain.SignUpRequest) (domain.User, error) {
	return a.Auth.SignUp(ctx, req)
}

func (a *App) SignOut(ctx context.Context) {
	a.Session.Logout(ctx)
}

// UpdateProfile saves a partial profile edit and refreshes the stored user.
func (a *App) UpdateProfile(ctx context.Context, update domain.UserUpdate) (domain.User, error) {
	user := a.Session.User()
	if user == nil || !a.Session.IsAuthenticated() {
		return domain.User{}, ErrLoginRequired
	}
	updated, err := a.Users.Update(ctx, user.ID, update)
	if err != nil {
		return domain.User{}, a.checkAuth(ctx, err)
	}
	a.Session.UpdateUser(ctx, updated)
	return updated, nil
}

// AddToCart requires a signed-in user.
func (a *App) AddToCart(ctx context.Context, productID int64) error {
	if !a.Session.IsAuthenticated() {
		return ErrLoginRequired
	}
	return a.checkAuth(ctx, a.Cart.AddToCart(ctx, productID))
}

// RemoveFromCart requires a signed-in user.
func (a *App) RemoveFromCart(ctx context.Context, productID int64) error {
	if !a.Session.IsAuthenticated() {
		return ErrLoginRequired
	}
	return a.checkAuth(ctx, a.Cart.RemoveFromCart(ctx, productID))
}

// CartCount reads the badge count from the backend.
func (a *App) CartCount(ctx context.Context) (int, error) {
	user := a.Session.User()
	if user == nil || !a.Session.IsAuthenticated() {
		return 0, ErrLoginRequired
	}
	n, err := a.Carts.ItemCount(ctx, user.ID)
	if err != nil {
		return 0, a.checkAuth(ctx, err)
	}
	return n, nil
}

// Subscribe confirms a subscription plan for productID, or for no
// particular coffee when productID is 0.
func (a *App) Subscribe(ctx context.Context, planID string, productID int64) (subscription.Confirmation, error) {
	var coffee *domain.Product
	if productID != 0 {
		p, _, err := a.Catalog.Product(ctx, productID)
		if err != nil {
			return subscription.Confirmation{}, err
		}
		coffee = &p
	}
	return a.Subscriptions.Subscribe(ctx, planID, coffee)
}

// checkAuth turns a 401 into a logout and ErrReauthRequired.
func (a *App) checkAuth(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if apiclient.IsUnauthorized(err) {
		a.logger.Info("backend rejected the session token, signing out")
		a.Session.Logout(ctx)
		return fmt.Errorf("%w: %v", ErrReauthRequired, err)
	}
	return err
}
