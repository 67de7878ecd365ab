package devbackend

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"heritagecoffee/pkg/domain"
)

type cartWire struct {
	ID             int64             `json:"id"`
	ExpirationDate string            `json:"expirationDate"`
	Total          json.RawMessage   `json:"total"`
	Products       []json.RawMessage `json:"Products"`
	CreatedAt      string            `json:"createdAt"`
	UpdatedAt      string            `json:"updatedAt"`
}

// cartForLocked returns the cart of userID, creating it on first use.
func (s *Server) cartForLocked(userID int64) *cartState {
	if id, ok := s.cartByUser[userID]; ok {
		return s.carts[id]
	}
	s.nextCartID++
	now := s.now().UTC()
	c := &cartState{id: s.nextCartID, userID: userID, createdAt: now, updatedAt: now}
	s.carts[c.id] = c
	s.cartByUser[userID] = c.id
	return c
}

// renderLocked computes the total server-side and lists items in insertion
// order, duplicates included.
func (s *Server) renderLocked(c *cartState) cartWire {
	total := decimal.Zero
	products := make([]json.RawMessage, 0, len(c.items))
	for _, pid := range c.items {
		p, ok := s.products[pid]
		if !ok {
			continue
		}
		total = total.Add(p.Price)
		products = append(products, productWire(p))
	}
	return cartWire{
		ID:             c.id,
		ExpirationDate: c.updatedAt.Add(defaultCartTTL).Format(time.RFC3339),
		Total:          json.RawMessage(total.StringFixed(2)),
		Products:       products,
		CreatedAt:      c.createdAt.Format(time.RFC3339),
		UpdatedAt:      c.updatedAt.Format(time.RFC3339),
	}
}

func (s *Server) handleUserCart(w http.ResponseWriter, r *http.Request, caller domain.User) {
	userID, ok := pathID(r, "userId")
	if !ok || userID != caller.ID {
		writeText(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}
	s.mu.Lock()
	out := s.renderLocked(s.cartForLocked(userID))
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCartCount(w http.ResponseWriter, r *http.Request, caller domain.User) {
	userID, ok := pathID(r, "userId")
	if !ok || userID != caller.ID {
		writeText(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}
	s.mu.Lock()
	count := len(s.cartForLocked(userID).items)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, count)
}

func (s *Server) handleAddToCart(w http.ResponseWriter, r *http.Request, caller domain.User) {
	s.mutateCart(w, r, caller, func(c *cartState, productID int64) bool {
		if _, ok := s.products[productID]; !ok {
			return false
		}
		c.items = append(c.items, productID)
		return true
	})
}

func (s *Server) handleRemoveFromCart(w http.ResponseWriter, r *http.Request, caller domain.User) {
	s.mutateCart(w, r, caller, func(c *cartState, productID int64) bool {
		for i, pid := range c.items {
			if pid == productID {
				c.items = append(c.items[:i], c.items[i+1:]...)
				return true
			}
		}
		return false
	})
}

func (s *Server) mutateCart(w http.ResponseWriter, r *http.Request, caller domain.User, apply func(*cartState, int64) bool) {
	cartID, okCart := pathID(r, "cartId")
	productID, okProduct := pathID(r, "productId")
	if !okCart || !okProduct {
		writeText(w, http.StatusNotFound, msgCartNotFound)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[cartID]
	if !ok {
		writeText(w, http.StatusNotFound, msgCartNotFound)
		return
	}
	if c.userID != caller.ID {
		writeText(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}
	if !apply(c, productID) {
		writeText(w, http.StatusNotFound, msgCartNotFound)
		return
	}
	c.updatedAt = s.now().UTC()
	writeJSON(w, http.StatusOK, s.renderLocked(c))
}
