// Package subscription prices the monthly coffee subscription and records
// a customer's choice. There is no backend endpoint for subscriptions yet,
// so Subscribe only confirms locally.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"heritagecoffee/internal/util"
	"heritagecoffee/pkg/domain"
)

var (
	ErrLoginRequired = errors.New("login required")
	ErrUnknownPlan   = errors.New("unknown subscription plan")
)

// DefaultPlanID is preselected on the subscription page.
const DefaultPlanID = "6months"

// NoCoffee is shown when no coffee has been picked.
const NoCoffee = "—"

type Plan struct {
	ID            string
	Label         string
	Months        int
	PricePerMonth decimal.Decimal
	TotalPrice    decimal.Decimal
	// Savings is the discount in percent against the shortest plan.
	Savings int
	Popular bool
}

var Plans = []Plan{
	{ID: "3months", Label: "3 mois", Months: 3, PricePerMonth: decimal.RequireFromString("28.90"), TotalPrice: decimal.RequireFromString("86.70")},
	{ID: "6months", Label: "6 mois", Months: 6, PricePerMonth: decimal.RequireFromString("24.90"), TotalPrice: decimal.RequireFromString("149.40"), Savings: 14, Popular: true},
	{ID: "12months", Label: "12 mois", Months: 12, PricePerMonth: decimal.RequireFromString("21.90"), TotalPrice: decimal.RequireFromString("262.80"), Savings: 24},
}

// PlanByID looks up a plan. An empty id selects DefaultPlanID.
func PlanByID(id string) (Plan, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = DefaultPlanID
	}
	for _, p := range Plans {
		if p.ID == id {
			return p, nil
		}
	}
	return Plan{}, fmt.Errorf("%w: %q", ErrUnknownPlan, id)
}

// Quote is the order summary shown before confirming.
type Quote struct {
	Plan     Plan
	Coffee   string
	CoffeeID int64
}

func (q Quote) PricePerMonth() decimal.Decimal { return q.Plan.PricePerMonth }
func (q Quote) Total() decimal.Decimal         { return q.Plan.TotalPrice }

// NewQuote summarises planID for coffee, which may be nil.
func NewQuote(planID string, coffee *domain.Product) (Quote, error) {
	plan, err := PlanByID(planID)
	if err != nil {
		return Quote{}, err
	}
	q := Quote{Plan: plan, Coffee: NoCoffee}
	if coffee != nil {
		q.Coffee = coffee.Name
		q.CoffeeID = coffee.ID
	}
	return q, nil
}

type Confirmation struct {
	Reference string
	UserID    int64
	Quote     Quote
	CreatedAt time.Time
}

// Sessions reports who is signed in. *session.Store satisfies it.
type Sessions interface {
	IsAuthenticated() bool
	User() *domain.User
}

type Service struct {
	sessions Sessions
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(sessions Sessions, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{sessions: sessions, logger: logger, now: time.Now}
}

// Subscribe confirms a subscription for the signed-in customer.
func (s *Service) Subscribe(ctx context.Context, planID string, coffee *domain.Product) (Confirmation, error) {
	if !s.sessions.IsAuthenticated() {
		return Confirmation{}, ErrLoginRequired
	}
	quote, err := NewQuote(planID, coffee)
	if err != nil {
		return Confirmation{}, err
	}
	var userID int64
	if u := s.sessions.User(); u != nil {
		userID = u.ID
	}
	conf := Confirmation{
		Reference: util.NewID(),
		UserID:    userID,
		Quote:     quote,
		CreatedAt: s.now(),
	}
	util.LoggerFromContext(ctx, s.logger).Info("subscription confirmed",
		"reference", conf.Reference,
		"user_id", userID,
		"plan", quote.Plan.ID,
		"coffee_id", quote.CoffeeID,
	)
	return conf, nil
}
