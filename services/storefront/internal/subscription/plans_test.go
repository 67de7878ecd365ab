package subscription

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"heritagecoffee/pkg/domain"
	"heritagecoffee/pkg/kvstore"
	"heritagecoffee/pkg/session"
)

func TestPlanTotalsMatchMonthlyPrice(t *testing.T) {
	for _, p := range Plans {
		want := p.PricePerMonth.Mul(decimal.NewFromInt(int64(p.Months)))
		if !want.Equal(p.TotalPrice) {
			t.Fatalf("plan %s total %s, want %s", p.ID, p.TotalPrice, want)
		}
	}
}

func TestNewQuote(t *testing.T) {
	q, err := NewQuote("", nil)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.Plan.ID != "6months" || !q.Plan.Popular || q.Coffee != NoCoffee {
		t.Fatalf("unexpected default quote %+v", q)
	}
	q, err = NewQuote("12months", &domain.Product{ID: 5, Name: "Kenya AA Nyeri"})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.Coffee != "Kenya AA Nyeri" || q.Plan.Savings != 24 || !q.Total().Equal(decimal.RequireFromString("262.80")) {
		t.Fatalf("unexpected quote %+v", q)
	}
	if _, err := NewQuote("weekly", nil); !errors.Is(err, ErrUnknownPlan) {
		t.Fatalf("expected unknown plan, got %v", err)
	}
}

func TestSubscribeRequiresLogin(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sess := session.Open(context.Background(), kvstore.NewMemoryBackend(), logger)
	defer sess.Close()
	svc := NewService(sess, logger)

	if _, err := svc.Subscribe(context.Background(), "3months", nil); !errors.Is(err, ErrLoginRequired) {
		t.Fatalf("expected login required, got %v", err)
	}

	sess.Login(context.Background(), "tok", domain.User{ID: 7})
	conf, err := svc.Subscribe(context.Background(), "3months", nil)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if conf.UserID != 7 || conf.Reference == "" || conf.Quote.Plan.ID != "3months" {
		t.Fatalf("unexpected confirmation %+v", conf)
	}
}
