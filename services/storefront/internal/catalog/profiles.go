package catalog

import (
	"strings"

	"heritagecoffee/pkg/domain"
)

// AromaProfile groups tasting-note keywords under a filter facet.
type AromaProfile struct {
	Name     string
	Keywords []string
}

// AromaProfiles lists the facets in display order.
var AromaProfiles = []AromaProfile{
	{Name: "Agrumes", Keywords: []string{"citron", "orange", "bergamote"}},
	{Name: "Fruits rouges", Keywords: []string{"fraise", "framboise", "cerise"}},
	{Name: "Fruits tropicaux", Keywords: []string{"ananas", "mangue", "pêche"}},
	{Name: "Chocolat / Cacao", Keywords: []string{"chocolat", "cacao"}},
	{Name: "Caramel / Toffee", Keywords: []string{"caramel", "toffee"}},
	{Name: "Noisette / Noix", Keywords: []string{"noisette", "noix"}},
	{Name: "Floral", Keywords: []string{"jasmin", "fleur d'oranger"}},
	{Name: "Épices", Keywords: []string{"cannelle", "clou de girofle"}},
	{Name: "Boisé / Herbacé", Keywords: []string{"bois", "herbacé"}},
	{Name: "Vin / Acidulé", Keywords: []string{"vin", "acidulé"}},
}

func profileByName(name string) (AromaProfile, bool) {
	for _, p := range AromaProfiles {
		if p.Name == name {
			return p, true
		}
	}
	return AromaProfile{}, false
}

// ProfileNames returns the facet names in display order.
func ProfileNames() []string {
	names := make([]string, len(AromaProfiles))
	for i, p := range AromaProfiles {
		names[i] = p.Name
	}
	return names
}

// Override is merchandising metadata applied over backend products.
type Override struct {
	RoastLevel   domain.RoastLevel
	TastingNotes []string
}

// Overrides is keyed by exact product name.
var Overrides = map[string]Override{
	"Éthiopie Yirgacheffe":         {RoastLevel: domain.RoastLight, TastingNotes: []string{"jasmin", "bergamote", "fruits rouges"}},
	"Kenya AA Nyeri":               {RoastLevel: domain.RoastLight, TastingNotes: []string{"cassis", "pamplemousse rose", "tomate confite"}},
	"Brésil Cerrado":               {RoastLevel: domain.RoastMediumDark, TastingNotes: []string{"noisette", "chocolat", "pain d'épices"}},
	"Colombie Huila":               {RoastLevel: domain.RoastMedium, TastingNotes: []string{"pomme verte", "sucre roux", "amande"}},
	"Honduras Santa Bárbara":       {RoastLevel: domain.RoastMedium, TastingNotes: []string{"pêche", "caramel", "cacao"}},
	"Mexique Chiapas":              {RoastLevel: domain.RoastMedium, TastingNotes: []string{"mandarine", "miel", "chocolat blanc"}},
	"Indonésie Sumatra Mandheling": {RoastLevel: domain.RoastDark, TastingNotes: []string{"cèdre", "chocolat amer", "épices"}},
	"Indonésie Sulawesi Toraja":    {RoastLevel: domain.RoastMediumDark, TastingNotes: []string{"tabac", "vanille", "réglisse"}},
}

// Enrich applies Overrides to products, returning a new slice. Products
// without an override keep their own roast level and notes.
func Enrich(products []domain.Product) []domain.Product {
	out := make([]domain.Product, len(products))
	for i, p := range products {
		if o, ok := Overrides[p.Name]; ok {
			if o.RoastLevel != "" {
				p.RoastLevel = o.RoastLevel
			}
			if len(o.TastingNotes) > 0 {
				p.TastingNotes = append([]string(nil), o.TastingNotes...)
			}
		}
		out[i] = p
	}
	return out
}

func hasAnyNote(notes []string, keywords []string) bool {
	for _, n := range notes {
		for _, k := range keywords {
			if strings.EqualFold(strings.TrimSpace(n), k) {
				return true
			}
		}
	}
	return false
}
