package userclient

import (
	"context"
	"strings"

	"heritagecoffee/pkg/apiclient"
	"heritagecoffee/pkg/domain"
)

// Client reads and edits user profiles under /users.
type Client struct {
	users *apiclient.Resource[domain.User]
}

func NewClient(api *apiclient.Client) *Client {
	return &Client{
		users: apiclient.NewResource[domain.User](api, apiclient.ResourceOptions{
			Endpoint:  "/users",
			Name:      "users",
			AuthReads: true,
		}),
	}
}

func (c *Client) Get(ctx context.Context, id int64) (domain.User, error) {
	return c.users.Get(ctx, id)
}

// Update sends a partial profile edit. A blank password is dropped so it
// never overwrites the stored one.
func (c *Client) Update(ctx context.Context, id int64, update domain.UserUpdate) (domain.User, error) {
	update = Sanitize(update)
	if err := domain.Validate(update); err != nil {
		return domain.User{}, apiclient.ValidationError(err)
	}
	return c.users.Update(ctx, id, update)
}

// Sanitize trims text fields and clears a blank password.
func Sanitize(update domain.UserUpdate) domain.UserUpdate {
	trim := func(v *string) *string {
		if v == nil {
			return nil
		}
		s := strings.TrimSpace(*v)
		return &s
	}
	update.FirstName = trim(update.FirstName)
	update.LastName = trim(update.LastName)
	update.EmailAddress = trim(update.EmailAddress)
	if update.Password != nil && strings.TrimSpace(*update.Password) == "" {
		update.Password = nil
	}
	return update
}
