package productclient

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"heritagecoffee/pkg/apiclient"
	"heritagecoffee/pkg/domain"
	"heritagecoffee/services/storefront/internal/devbackend"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend, err := devbackend.New(devbackend.Config{
		Products: []domain.Product{
			{ID: 1, Name: "Pérou Cajamarca", Price: decimal.RequireFromString("12.90"), Stock: 45, Category: "café", Images: []domain.Image{{ID: 1, Link: "peru.jpg"}}},
			{ID: 2, Name: "Ethiopie Yirgacheffe", Price: decimal.RequireFromString("14.50"), Stock: 0, Category: "café"},
			{ID: 3, Name: "Tasse en grès", Price: decimal.RequireFromString("9.00"), Stock: 4, Category: "accessoire"},
		},
		BcryptCost: bcrypt.MinCost,
		Logger:     logger,
	})
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}
	srv := httptest.NewServer(backend.Router())
	t.Cleanup(srv.Close)
	api, err := apiclient.NewClient(apiclient.Options{BaseURL: srv.URL + "/api", Logger: logger})
	if err != nil {
		t.Fatalf("new api client: %v", err)
	}
	return NewClient(api, logger)
}

func TestSearchNormalizesImages(t *testing.T) {
	c := newTestClient(t)
	products, err := c.Search(context.Background(), SearchParams{Search: "cajamarca"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(products) != 1 {
		t.Fatalf("expected one product, got %d", len(products))
	}
	if len(products[0].Images) != 1 || products[0].Images[0].Link != "peru.jpg" {
		t.Fatalf("images not normalized: %+v", products[0].Images)
	}
	if !products[0].Price.Equal(decimal.RequireFromString("12.9")) {
		t.Fatalf("unexpected price %s", products[0].Price)
	}
}

func TestSearchFilters(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	byCategory, err := c.ByCategory(ctx, "accessoire")
	if err != nil || len(byCategory) != 1 || byCategory[0].ID != 3 {
		t.Fatalf("unexpected category result %+v err=%v", byCategory, err)
	}
	byPrice, err := c.ByPriceRange(ctx, decimal.RequireFromString("10"), decimal.RequireFromString("13"))
	if err != nil || len(byPrice) != 1 || byPrice[0].ID != 1 {
		t.Fatalf("unexpected price range result %+v err=%v", byPrice, err)
	}
}

func TestAvailabilityAndStock(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	if !c.IsAvailable(ctx, 1) {
		t.Fatalf("product 1 has stock")
	}
	if c.IsAvailable(ctx, 2) {
		t.Fatalf("product 2 is sold out")
	}
	if c.IsAvailable(ctx, 404) {
		t.Fatalf("unknown products are unavailable")
	}
	inStock, err := c.InStock(ctx)
	if err != nil || len(inStock) != 2 {
		t.Fatalf("unexpected in-stock list %+v err=%v", inStock, err)
	}
}

func TestNewArrivalsLimit(t *testing.T) {
	c := newTestClient(t)
	got, err := c.NewArrivals(context.Background(), 2)
	if err != nil || len(got) != 2 || got[0].ID != 1 {
		t.Fatalf("unexpected arrivals %+v err=%v", got, err)
	}
	all, err := c.NewArrivals(context.Background(), 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("default limit should return all three, got %d err=%v", len(all), err)
	}
}

func TestGetUnknownProduct(t *testing.T) {
	c := newTestClient(t)
	_, err := c.Get(context.Background(), 99)
	if !apiclient.IsNotFound(err) || err.Error() != "Product not found" {
		t.Fatalf("expected plain-text not found error, got %v", err)
	}
}
