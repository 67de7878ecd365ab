package productclient

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"heritagecoffee/pkg/apiclient"
	"heritagecoffee/pkg/domain"
)

// DefaultNewArrivals is the number of products returned by NewArrivals
// when no limit is given.
const DefaultNewArrivals = 10

// SearchParams narrows a product search. Zero fields are not sent.
type SearchParams struct {
	Search   string
	Category string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
}

func (p SearchParams) query() url.Values {
	q := url.Values{}
	if s := strings.TrimSpace(p.Search); s != "" {
		q.Set("search", s)
	}
	if c := strings.TrimSpace(p.Category); c != "" {
		q.Set("category", c)
	}
	if p.MinPrice != nil {
		q.Set("minPrice", p.MinPrice.String())
	}
	if p.MaxPrice != nil {
		q.Set("maxPrice", p.MaxPrice.String())
	}
	return q
}

// Client calls the /products endpoints.
type Client struct {
	products *apiclient.Resource[domain.Product]
	logger   *slog.Logger
}

// NewClient constructs a product client.
func NewClient(api *apiclient.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		products: apiclient.NewResource[domain.Product](api, apiclient.ResourceOptions{
			Endpoint: "/products",
			Name:     "products",
			Renames:  map[string]string{"Images": "images"},
		}),
		logger: logger,
	}
}

func (c *Client) Search(ctx context.Context, params SearchParams) ([]domain.Product, error) {
	return c.products.List(ctx, params.query())
}

func (c *Client) List(ctx context.Context) ([]domain.Product, error) {
	return c.products.List(ctx, nil)
}

func (c *Client) Get(ctx context.Context, id int64) (domain.Product, error) {
	return c.products.Get(ctx, id)
}

func (c *Client) ByCategory(ctx context.Context, category string) ([]domain.Product, error) {
	return c.Search(ctx, SearchParams{Category: category})
}

func (c *Client) ByPriceRange(ctx context.Context, min, max decimal.Decimal) ([]domain.Product, error) {
	return c.Search(ctx, SearchParams{MinPrice: &min, MaxPrice: &max})
}

// IsAvailable reports whether the product has stock. Any failure counts as
// unavailable.
func (c *Client) IsAvailable(ctx context.Context, id int64) bool {
	p, err := c.Get(ctx, id)
	if err != nil {
		c.logger.Warn("availability check failed", "product_id", id, "err", err)
		return false
	}
	return p.InStock()
}

// InStock lists products with at least one unit left.
func (c *Client) InStock(ctx context.Context) ([]domain.Product, error) {
	all, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Product, 0, len(all))
	for _, p := range all {
		if p.InStock() {
			out = append(out, p)
		}
	}
	return out, nil
}

// NewArrivals returns the first limit products in server order.
func (c *Client) NewArrivals(ctx context.Context, limit int) ([]domain.Product, error) {
	if limit <= 0 {
		limit = DefaultNewArrivals
	}
	all, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (c *Client) Create(ctx context.Context, p domain.Product) (domain.Product, error) {
	return c.products.Create(ctx, p)
}

func (c *Client) Update(ctx context.Context, id int64, p domain.Product) (domain.Product, error) {
	return c.products.Update(ctx, id, p)
}

func (c *Client) Delete(ctx context.Context, id int64) error {
	return c.products.Delete(ctx, id)
}
