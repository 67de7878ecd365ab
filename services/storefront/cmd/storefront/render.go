package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"heritagecoffee/pkg/domain"
	"heritagecoffee/services/storefront/internal/cartstore"
	"heritagecoffee/services/storefront/internal/catalog"
	"heritagecoffee/services/storefront/internal/subscription"
)

func euros(d decimal.Decimal) string {
	return d.StringFixed(2) + " €"
}

func printView(w io.Writer, v catalog.View) {
	if v.Degraded {
		fmt.Fprintln(w, "Serveur indisponible, affichage du catalogue de démonstration.")
	}
	fmt.Fprintf(w, "%d café(s)", v.Count)
	if v.Query != "" {
		fmt.Fprintf(w, " pour %q", v.Query)
	}
	fmt.Fprintf(w, " | prix %s à %s", euros(v.Bounds.Min), euros(v.Bounds.Max))
	if v.ActiveFilters > 0 {
		fmt.Fprintf(w, " | %d filtre(s) actif(s)", v.ActiveFilters)
	}
	fmt.Fprintln(w)
	printProducts(w, v.Results)
}

func printProducts(w io.Writer, products []domain.Product) {
	if len(products) == 0 {
		fmt.Fprintln(w, "Aucun café ne correspond à votre recherche.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNOM\tTORRÉFACTION\tPRIX\tSTOCK")
	for _, p := range products {
		stock := fmt.Sprint(p.Stock)
		if !p.InStock() {
			stock = "épuisé"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.RoastLevel.Label(), euros(p.Price), stock)
	}
	_ = tw.Flush()
}

func printProduct(w io.Writer, p domain.Product, degraded bool) {
	if degraded {
		fmt.Fprintln(w, "Serveur indisponible, fiche de démonstration.")
	}
	fmt.Fprintf(w, "%s (#%d)  %s\n", p.Name, p.ID, euros(p.Price))
	if p.Description != "" {
		fmt.Fprintln(w, p.Description)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if p.Origin != nil {
		origin := p.Origin.Country
		if p.Origin.Region != "" {
			origin += ", " + p.Origin.Region
		}
		fmt.Fprintf(tw, "Origine\t%s\n", origin)
		if p.Origin.Farm != "" {
			fmt.Fprintf(tw, "Ferme\t%s\n", p.Origin.Farm)
		}
	}
	if p.RoastLevel != "" {
		fmt.Fprintf(tw, "Torréfaction\t%s\n", p.RoastLevel.Label())
	}
	if len(p.TastingNotes) > 0 {
		fmt.Fprintf(tw, "Notes\t%s\n", strings.Join(p.TastingNotes, ", "))
	}
	if p.ProcessingMethod != "" {
		fmt.Fprintf(tw, "Process\t%s\n", p.ProcessingMethod)
	}
	if p.Altitude > 0 {
		fmt.Fprintf(tw, "Altitude\t%d m\n", p.Altitude)
	}
	if p.Intensity != nil {
		fmt.Fprintf(tw, "Intensité\t%d/10\n", *p.Intensity)
	}
	if len(p.Certifications) > 0 {
		fmt.Fprintf(tw, "Certifications\t%s\n", strings.Join(p.Certifications, ", "))
	}
	if p.InStock() {
		fmt.Fprintf(tw, "Stock\t%d\n", p.Stock)
	} else {
		fmt.Fprintln(tw, "Stock\tépuisé")
	}
	_ = tw.Flush()
}

func printCart(w io.Writer, snap cartstore.Snapshot) {
	if snap.Cart == nil {
		if snap.LastError != nil {
			fmt.Fprintln(w, "Panier indisponible:", snap.LastError)
			return
		}
		fmt.Fprintln(w, "Panier non chargé.")
		return
	}
	if len(snap.Cart.Items) == 0 {
		fmt.Fprintln(w, "Votre panier est vide.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNOM\tPRIX")
	for _, p := range snap.Cart.Items {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", p.ID, p.Name, euros(p.Price))
	}
	fmt.Fprintf(tw, "\tTotal\t%s\n", euros(snap.Cart.Total))
	_ = tw.Flush()
}

func printPlans(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFORMULE\tPAR MOIS\tTOTAL\tÉCONOMIE\t")
	for _, p := range subscription.Plans {
		savings := "-"
		if p.Savings > 0 {
			savings = fmt.Sprintf("%d%%", p.Savings)
		}
		tag := ""
		if p.Popular {
			tag = "populaire"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", p.ID, p.Label, euros(p.PricePerMonth), euros(p.TotalPrice), savings, tag)
	}
	_ = tw.Flush()
}

func printConfirmation(w io.Writer, c subscription.Confirmation) {
	fmt.Fprintf(w, "Abonnement confirmé (réf. %s)\n", c.Reference)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Formule\t%s\n", c.Quote.Plan.Label)
	fmt.Fprintf(tw, "Café\t%s\n", c.Quote.Coffee)
	fmt.Fprintf(tw, "Par mois\t%s\n", euros(c.Quote.PricePerMonth()))
	fmt.Fprintf(tw, "Total\t%s\n", euros(c.Quote.Total()))
	_ = tw.Flush()
}
