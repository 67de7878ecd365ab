package cartclient

import (
	"context"
	"fmt"
	"net/http"

	"heritagecoffee/pkg/apiclient"
	"heritagecoffee/pkg/domain"
)

// Client calls the /carts endpoints. Every call needs the bearer token.
type Client struct {
	api   *apiclient.Client
	carts *apiclient.Resource[domain.Cart]
}

// NewClient constructs a cart client. The backend names the item list
// "Products"; it is exposed as Cart.Items.
func NewClient(api *apiclient.Client) *Client {
	return &Client{
		api: api,
		carts: apiclient.NewResource[domain.Cart](api, apiclient.ResourceOptions{
			Endpoint:  "/carts",
			Name:      "cart",
			Renames:   map[string]string{"Products": "items"},
			AuthReads: true,
		}),
	}
}

// ByUserID loads the cart owned by userID.
func (c *Client) ByUserID(ctx context.Context, userID int64) (*domain.Cart, error) {
	cart, err := c.carts.Fetch(ctx, apiclient.Request{
		Op:      "cart.get",
		Method:  http.MethodGet,
		Path:    c.carts.Path(fmt.Sprintf("/user/%d", userID)),
		Headers: apiclient.HeaderOptions{IncludeAuth: true, ContentType: apiclient.ContentNone},
	})
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// ItemCount returns the number of items in the user's cart.
func (c *Client) ItemCount(ctx context.Context, userID int64) (int, error) {
	var count int
	err := c.api.Do(ctx, apiclient.Request{
		Op:      "cart.count",
		Method:  http.MethodGet,
		Path:    c.carts.Path(fmt.Sprintf("/user/%d/count", userID)),
		Headers: apiclient.HeaderOptions{IncludeAuth: true, ContentType: apiclient.ContentNone},
	}, &count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// AddProduct adds one unit of productID and returns the updated cart.
func (c *Client) AddProduct(ctx context.Context, cartID, productID int64) (*domain.Cart, error) {
	return c.mutate(ctx, "cart.add", http.MethodPost, cartID, productID)
}

// RemoveProduct removes productID and returns the updated cart.
func (c *Client) RemoveProduct(ctx context.Context, cartID, productID int64) (*domain.Cart, error) {
	return c.mutate(ctx, "cart.remove", http.MethodDelete, cartID, productID)
}

func (c *Client) mutate(ctx context.Context, op, method string, cartID, productID int64) (*domain.Cart, error) {
	cart, err := c.carts.Fetch(ctx, apiclient.Request{
		Op:      op,
		Method:  method,
		Path:    c.carts.Path(fmt.Sprintf("/%d/products/%d", cartID, productID)),
		Headers: apiclient.HeaderOptions{IncludeAuth: true, ContentType: apiclient.ContentNone},
	})
	if err != nil {
		return nil, err
	}
	return &cart, nil
}
