package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type RoastLevel string

const (
	RoastLight      RoastLevel = "light"
	RoastMedium     RoastLevel = "medium"
	RoastMediumDark RoastLevel = "medium-dark"
	RoastDark       RoastLevel = "dark"
)

// RoastLevels lists roast levels from lightest to darkest.
var RoastLevels = []RoastLevel{RoastLight, RoastMedium, RoastMediumDark, RoastDark}

var roastLabels = map[RoastLevel]string{
	RoastLight:      "Claire",
	RoastMedium:     "Médium",
	RoastMediumDark: "Médium-foncé",
	RoastDark:       "Foncée",
}

// Valid reports whether r is one of the known roast levels.
func (r RoastLevel) Valid() bool {
	_, ok := roastLabels[r]
	return ok
}

// Label returns the customer-facing name of the roast level.
func (r RoastLevel) Label() string {
	if label, ok := roastLabels[r]; ok {
		return label
	}
	return string(r)
}

type User struct {
	ID           int64      `json:"id"`
	FirstName    string     `json:"firstName"`
	LastName     string     `json:"lastName"`
	EmailAddress string     `json:"emailAddress"`
	CreatedAt    *time.Time `json:"createdAt,omitempty"`
	UpdatedAt    *time.Time `json:"updatedAt,omitempty"`
}

type Image struct {
	ID   int64  `json:"id"`
	Link string `json:"link"`
	Alt  string `json:"alt,omitempty"`
}

type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type Origin struct {
	Country     string       `json:"country"`
	Region      string       `json:"region,omitempty"`
	Farm        string       `json:"farm,omitempty"`
	FarmerID    string       `json:"farmerId,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

type Product struct {
	ID               int64           `json:"id"`
	Name             string          `json:"name"`
	Price            decimal.Decimal `json:"price"`
	Description      string          `json:"description"`
	Stock            int             `json:"stock"`
	Category         string          `json:"category,omitempty"`
	Images           []Image         `json:"images,omitempty"`
	Origin           *Origin         `json:"origin,omitempty"`
	RoastLevel       RoastLevel      `json:"roastLevel,omitempty"`
	TastingNotes     []string        `json:"tastingNotes,omitempty"`
	ProcessingMethod string          `json:"processingMethod,omitempty"`
	Altitude         int             `json:"altitude,omitempty"`
	HarvestDate      string          `json:"harvestDate,omitempty"`
	Certifications   []string        `json:"certifications,omitempty"`
	Intensity        *int            `json:"intensity,omitempty"`
}

// InStock reports whether at least one unit is available.
func (p Product) InStock() bool {
	return p.Stock > 0
}

// Cart is the server-owned snapshot of a user's basket. Total is always the
// value computed by the backend.
type Cart struct {
	ID             int64           `json:"id"`
	Items          []Product       `json:"items"`
	Total          decimal.Decimal `json:"total"`
	ExpirationDate string          `json:"expirationDate,omitempty"`
	CreatedAt      string          `json:"createdAt,omitempty"`
	UpdatedAt      string          `json:"updatedAt,omitempty"`
}

// Clone returns a copy whose item slice can be handed out safely.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	out := *c
	out.Items = append([]Product(nil), c.Items...)
	return &out
}

type SignUpRequest struct {
	FirstName    string `json:"firstName" validate:"required,max=100"`
	LastName     string `json:"lastName" validate:"required,max=100"`
	EmailAddress string `json:"emailAddress" validate:"required,email"`
	Password     string `json:"password" validate:"required,min=6"`
}

type SignInRequest struct {
	EmailAddress string `json:"emailAddress" validate:"required,email"`
	Password     string `json:"password" validate:"required"`
}

type SignInResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// UserUpdate carries a partial profile edit. Nil fields are not sent.
type UserUpdate struct {
	FirstName    *string `json:"firstName,omitempty" validate:"omitempty,max=100"`
	LastName     *string `json:"lastName,omitempty" validate:"omitempty,max=100"`
	EmailAddress *string `json:"emailAddress,omitempty" validate:"omitempty,email"`
	Password     *string `json:"password,omitempty" validate:"omitempty,min=6"`
}
