// Package devbackend is an in-memory implementation of the storefront REST
// API used for local development and tests. It reproduces the quirks of
// the production backend: capitalized association keys, plain-text 401 and
// 404 bodies, ORM validation payloads on signup and bare-integer counts.
package devbackend

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
	"heritagecoffee/internal/ratelimit"
	"heritagecoffee/internal/usertoken"
	"heritagecoffee/internal/util"
	"heritagecoffee/pkg/domain"
)

const (
	tokenIssuer      = "heritagecoffee-devbackend"
	defaultCartTTL   = 7 * 24 * time.Hour
	maxRequestBody   = 1 << 20
	msgUnauthorized  = "Unauthorized"
	msgCartNotFound  = "Cart or product not found"
	msgUserNotFound  = "User not found"
	msgEmailTaken    = "Email déjà utilisé"
	msgProductAbsent = "Product not found"
)

// SeedUser is an account created at startup.
type SeedUser struct {
	FirstName    string
	LastName     string
	EmailAddress string
	Password     string
}

// Config wires the server.
type Config struct {
	Products []domain.Product
	Users    []SeedUser
	// Secret signs session tokens. A random secret is generated when empty.
	Secret []byte
	// TokenTTL defaults to 24h.
	TokenTTL time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
	// AuthLimiter throttles signin and signup per client address.
	AuthLimiter ratelimit.Limiter
	Logger      *slog.Logger
	Now         func() time.Time
}

type account struct {
	user domain.User
	hash []byte
}

type cartState struct {
	id        int64
	userID    int64
	items     []int64
	createdAt time.Time
	updatedAt time.Time
}

// Server holds the in-memory state and the HTTP routes.
type Server struct {
	tokens      *usertoken.Signer
	bcryptCost  int
	authLimiter ratelimit.Limiter
	logger      *slog.Logger
	now         func() time.Time
	mux         *http.ServeMux

	mu            sync.Mutex
	products      map[int64]domain.Product
	productOrder  []int64
	nextProductID int64
	accounts      map[int64]*account
	byEmail       map[string]int64
	nextUserID    int64
	carts         map[int64]*cartState
	cartByUser    map[int64]int64
	nextCartID    int64
}

// New builds a server seeded from cfg.
func New(cfg Config) (*Server, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	tokens, err := usertoken.NewSigner(usertoken.Config{
		Secret: cfg.Secret,
		Issuer: tokenIssuer,
		TTL:    cfg.TokenTTL,
		Now:    cfg.Now,
	})
	if err != nil {
		return nil, err
	}
	s := &Server{
		tokens:      tokens,
		bcryptCost:  cfg.BcryptCost,
		authLimiter: cfg.AuthLimiter,
		logger:      cfg.Logger,
		now:         cfg.Now,
		mux:         http.NewServeMux(),
		products:    make(map[int64]domain.Product),
		accounts:    make(map[int64]*account),
		byEmail:     make(map[string]int64),
		carts:       make(map[int64]*cartState),
		cartByUser:  make(map[int64]int64),
	}
	if s.bcryptCost == 0 {
		s.bcryptCost = bcrypt.DefaultCost
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	for _, p := range cfg.Products {
		s.putProduct(p)
	}
	for _, u := range cfg.Users {
		if _, err := s.createAccount(domain.SignUpRequest{
			FirstName:    u.FirstName,
			LastName:     u.LastName,
			EmailAddress: u.EmailAddress,
			Password:     u.Password,
		}); err != nil {
			return nil, err
		}
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestContext(s.logger, util.WithRequestLog("devbackend", util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.HandleFunc("GET /api/products", s.handleListProducts)
	s.mux.HandleFunc("GET /api/products/{id}", s.handleGetProduct)
	s.mux.Handle("POST /api/products", s.authenticated(s.handleCreateProduct))
	s.mux.Handle("PUT /api/products/{id}", s.authenticated(s.handleUpdateProduct))
	s.mux.Handle("DELETE /api/products/{id}", s.authenticated(s.handleDeleteProduct))

	s.mux.HandleFunc("POST /api/users/signup", s.handleSignUp)
	s.mux.HandleFunc("POST /api/users/signin", s.handleSignIn)
	s.mux.Handle("GET /api/users/{id}", s.authenticated(s.handleGetUser))
	s.mux.Handle("PUT /api/users/{id}", s.authenticated(s.handleUpdateUser))

	s.mux.Handle("GET /api/carts/user/{userId}", s.authenticated(s.handleUserCart))
	s.mux.Handle("GET /api/carts/user/{userId}/count", s.authenticated(s.handleCartCount))
	s.mux.Handle("POST /api/carts/{cartId}/products/{productId}", s.authenticated(s.handleAddToCart))
	s.mux.Handle("DELETE /api/carts/{cartId}/products/{productId}", s.authenticated(s.handleRemoveFromCart))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.authorize(r)
		if !ok {
			s.audit(r, "devbackend.authorize", "fail")
			writeText(w, http.StatusUnauthorized, msgUnauthorized)
			return
		}
		next(w, r, user)
	})
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request) bool {
	if s.authLimiter == nil {
		return true
	}
	if s.authLimiter.Allow(r.Context(), r.URL.Path+"|"+util.ClientIP(r)) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, "Trop de tentatives, réessayez plus tard.")
	return false
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context(), s.logger)
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

func decodeJSON(r *http.Request, out any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(out)
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(r.PathValue(name)), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, msg)
}
