package devbackend

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"heritagecoffee/pkg/apiclient"
	"heritagecoffee/pkg/domain"
)

// productWire renders a product the way the backend ORM does: a bare
// numeric price and the image association under "Images".
func productWire(p domain.Product) json.RawMessage {
	data, err := json.Marshal(p)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return data
	}
	obj["price"] = json.RawMessage(p.Price.StringFixed(2))
	out, err := json.Marshal(obj)
	if err != nil {
		return data
	}
	renamed, err := apiclient.RenameKeys(out, map[string]string{"images": "Images"})
	if err != nil {
		return out
	}
	return renamed
}

func (s *Server) putProduct(p domain.Product) domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.nextProductID + 1
	}
	if p.ID > s.nextProductID {
		s.nextProductID = p.ID
	}
	if _, exists := s.products[p.ID]; !exists {
		s.productOrder = append(s.productOrder, p.ID)
	}
	s.products[p.ID] = p
	return p
}

func matchesSearch(p domain.Product, term string) bool {
	if term == "" {
		return true
	}
	term = strings.ToLower(term)
	if strings.Contains(strings.ToLower(p.Name), term) || strings.Contains(strings.ToLower(p.Description), term) {
		return true
	}
	return p.Origin != nil && strings.Contains(strings.ToLower(p.Origin.Country), term)
}

func parsePrice(raw string) (decimal.Decimal, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	term := strings.TrimSpace(q.Get("search"))
	category := strings.TrimSpace(q.Get("category"))
	minPrice, hasMin := parsePrice(q.Get("minPrice"))
	maxPrice, hasMax := parsePrice(q.Get("maxPrice"))

	s.mu.Lock()
	items := make([]json.RawMessage, 0, len(s.productOrder))
	for _, id := range s.productOrder {
		p := s.products[id]
		if !matchesSearch(p, term) {
			continue
		}
		if category != "" && !strings.EqualFold(p.Category, category) {
			continue
		}
		if hasMin && p.Price.LessThan(minPrice) {
			continue
		}
		if hasMax && p.Price.GreaterThan(maxPrice) {
			continue
		}
		items = append(items, productWire(p))
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"products": items,
		"total":    len(items),
	})
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeText(w, http.StatusNotFound, msgProductAbsent)
		return
	}
	s.mu.Lock()
	p, ok := s.products[id]
	s.mu.Unlock()
	if !ok {
		writeText(w, http.StatusNotFound, msgProductAbsent)
		return
	}
	writeJSON(w, http.StatusOK, productWire(p))
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request, _ domain.User) {
	var p domain.Product
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(p.Name) == "" || p.Price.IsNegative() {
		writeError(w, http.StatusBadRequest, "name and a non-negative price are required")
		return
	}
	p.ID = 0
	writeJSON(w, http.StatusCreated, productWire(s.putProduct(p)))
}

func (s *Server) handleUpdateProduct(w http.ResponseWriter, r *http.Request, _ domain.User) {
	id, ok := pathID(r, "id")
	if !ok {
		writeText(w, http.StatusNotFound, msgProductAbsent)
		return
	}
	var p domain.Product
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.mu.Lock()
	_, exists := s.products[id]
	s.mu.Unlock()
	if !exists {
		writeText(w, http.StatusNotFound, msgProductAbsent)
		return
	}
	p.ID = id
	writeJSON(w, http.StatusOK, productWire(s.putProduct(p)))
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request, _ domain.User) {
	id, ok := pathID(r, "id")
	if !ok {
		writeText(w, http.StatusNotFound, msgProductAbsent)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.products[id]; !exists {
		writeText(w, http.StatusNotFound, msgProductAbsent)
		return
	}
	delete(s.products, id)
	for i, pid := range s.productOrder {
		if pid == id {
			s.productOrder = append(s.productOrder[:i], s.productOrder[i+1:]...)
			break
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
