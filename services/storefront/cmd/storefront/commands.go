package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"heritagecoffee/pkg/domain"
	"heritagecoffee/services/storefront/internal/catalog"
	"heritagecoffee/services/storefront/internal/subscription"
)

func commands() map[string]command {
	return map[string]command{
		"products":    {name: "products", usage: "search and filter the catalogue", run: runProducts},
		"product":     {name: "product", usage: "show one product and suggestions: product <id>", run: runProduct},
		"signup":      {name: "signup", usage: "create an account", run: runSignUp},
		"signin":      {name: "signin", usage: "sign in and persist the session", run: runSignIn},
		"signout":     {name: "signout", usage: "clear the persisted session", run: runSignOut},
		"whoami":      {name: "whoami", usage: "show the signed-in user", run: runWhoAmI},
		"profile":     {name: "profile", usage: "edit the signed-in user's profile", run: runProfile},
		"cart":        {name: "cart", usage: "show the cart", run: runCart},
		"cart-add":    {name: "cart-add", usage: "add a product: cart-add <id>", run: runCartAdd},
		"cart-remove": {name: "cart-remove", usage: "remove a product: cart-remove <id>", run: runCartRemove},
		"cart-count":  {name: "cart-count", usage: "show the number of items in the cart", run: runCartCount},
		"aromas":      {name: "aromas", usage: "list aroma profiles and sort keys", offline: true, run: runAromas},
		"plans":       {name: "plans", usage: "list subscription plans", offline: true, run: runPlans},
		"subscribe":   {name: "subscribe", usage: "subscribe to a plan", run: runSubscribe},
		"shell":       {name: "shell", usage: "interactive session (default)", run: runShell},
		"dev-backend": {name: "dev-backend", usage: "serve the in-memory development backend", offline: true, run: runDevBackend},
	}
}

func commandNames() []string {
	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func parseID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, errors.New("expected exactly one product id")
	}
	id, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid product id %q", args[0])
	}
	return id, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func runProducts(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("products", e.out)
	query := fs.String("q", "", "search the backend for this text")
	text := fs.String("text", "", "filter loaded products by name, description or tasting note")
	roasts := fs.String("roast", "", "comma-separated roast levels (light, medium, medium-dark, dark)")
	profiles := fs.String("aroma", "", "comma-separated aroma profile names")
	minPrice := fs.String("min", "", "minimum price")
	maxPrice := fs.String("max", "", "maximum price")
	sortKey := fs.String("sort", string(catalog.SortDefault), "default, price-asc, price-desc, name-asc or stock-desc")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *query != "" {
		if err := e.app.Catalog.Load(ctx, *query); err != nil {
			return err
		}
	}
	filters, err := buildFilters(e.app.Catalog.View().Bounds, *text, *roasts, *profiles, *minPrice, *maxPrice, *sortKey)
	if err != nil {
		return err
	}
	e.app.Catalog.SetFilters(filters)
	printView(e.out, e.app.Catalog.View())
	return nil
}

func buildFilters(bounds catalog.PriceRange, text, roasts, profiles, minPrice, maxPrice, sortKey string) (catalog.Filters, error) {
	f := catalog.Filters{Text: text, Sort: catalog.ParseSortKey(sortKey)}
	for _, r := range splitList(roasts) {
		level := domain.RoastLevel(r)
		if !level.Valid() {
			return f, fmt.Errorf("unknown roast level %q", r)
		}
		f.RoastLevels = append(f.RoastLevels, level)
	}
	f.AromaProfiles = splitList(profiles)
	if minPrice != "" || maxPrice != "" {
		r := bounds
		if minPrice != "" {
			d, err := decimal.NewFromString(minPrice)
			if err != nil {
				return f, fmt.Errorf("invalid -min: %w", err)
			}
			r.Min = d
		}
		if maxPrice != "" {
			d, err := decimal.NewFromString(maxPrice)
			if err != nil {
				return f, fmt.Errorf("invalid -max: %w", err)
			}
			r.Max = d
		}
		f.Price = &r
	}
	return f, nil
}

func runProduct(ctx context.Context, e *env, args []string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}
	p, degraded, err := e.app.Catalog.Product(ctx, id)
	if err != nil {
		return err
	}
	printProduct(e.out, p, degraded)
	if related := e.app.Catalog.Suggestions(id); len(related) > 0 {
		fmt.Fprintln(e.out, "\nVous pourriez aimer")
		printProducts(e.out, related)
	}
	return nil
}

func runSignUp(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("signup", e.out)
	first := fs.String("first", "", "first name")
	last := fs.String("last", "", "last name")
	email := fs.String("email", "", "email address")
	password := fs.String("password", "", "password (prompted when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pw, err := promptIfEmpty(e, *password, "Mot de passe: ")
	if err != nil {
		return err
	}
	user, err := e.app.SignUp(ctx, domain.SignUpRequest{FirstName: *first, LastName: *last, EmailAddress: *email, Password: pw})
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Compte créé pour %s. Connectez-vous avec signin.\n", user.EmailAddress)
	return nil
}

func runSignIn(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("signin", e.out)
	email := fs.String("email", "", "email address")
	password := fs.String("password", "", "password (prompted when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pw, err := promptIfEmpty(e, *password, "Mot de passe: ")
	if err != nil {
		return err
	}
	user, err := e.app.SignIn(ctx, *email, pw)
	if err != nil {
		return err
	}
	e.app.Cart.Wait()
	fmt.Fprintf(e.out, "Bienvenue %s %s.\n", user.FirstName, user.LastName)
	return nil
}

func runSignOut(ctx context.Context, e *env, _ []string) error {
	e.app.SignOut(ctx)
	fmt.Fprintln(e.out, "Déconnecté.")
	return nil
}

func runWhoAmI(_ context.Context, e *env, _ []string) error {
	user := e.app.Session.User()
	if user == nil || !e.app.Session.IsAuthenticated() {
		fmt.Fprintln(e.out, "Non connecté.")
		return nil
	}
	fmt.Fprintf(e.out, "#%d %s %s <%s>\n", user.ID, user.FirstName, user.LastName, user.EmailAddress)
	return nil
}

func runProfile(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("profile", e.out)
	first := fs.String("first", "", "new first name")
	last := fs.String("last", "", "new last name")
	email := fs.String("email", "", "new email address")
	password := fs.String("password", "", "new password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var update domain.UserUpdate
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "first":
			update.FirstName = first
		case "last":
			update.LastName = last
		case "email":
			update.EmailAddress = email
		case "password":
			update.Password = password
		}
	})
	user, err := e.app.UpdateProfile(ctx, update)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Profil mis à jour: %s %s <%s>\n", user.FirstName, user.LastName, user.EmailAddress)
	return nil
}

func runCart(_ context.Context, e *env, _ []string) error {
	if !e.app.Session.IsAuthenticated() {
		return errors.New("connectez-vous pour voir votre panier")
	}
	printCart(e.out, e.app.Cart.Snapshot())
	return nil
}

func runCartAdd(ctx context.Context, e *env, args []string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}
	if err := e.app.AddToCart(ctx, id); err != nil {
		return err
	}
	printCart(e.out, e.app.Cart.Snapshot())
	return nil
}

func runCartRemove(ctx context.Context, e *env, args []string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}
	if err := e.app.RemoveFromCart(ctx, id); err != nil {
		return err
	}
	printCart(e.out, e.app.Cart.Snapshot())
	return nil
}

func runCartCount(ctx context.Context, e *env, _ []string) error {
	n, err := e.app.CartCount(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.out, n)
	return nil
}

func runAromas(_ context.Context, e *env, _ []string) error {
	fmt.Fprintln(e.out, "Profils aromatiques")
	for _, p := range catalog.AromaProfiles {
		fmt.Fprintf(e.out, "  %-18s %s\n", p.Name, strings.Join(p.Keywords, ", "))
	}
	fmt.Fprintln(e.out, "Tris")
	for _, k := range catalog.SortKeys {
		fmt.Fprintf(e.out, "  %-18s %s\n", k.Key, k.Label)
	}
	return nil
}

func runPlans(_ context.Context, e *env, _ []string) error {
	printPlans(e.out)
	return nil
}

func runSubscribe(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("subscribe", e.out)
	plan := fs.String("plan", subscription.DefaultPlanID, "plan id")
	coffee := fs.Int64("coffee", 0, "product id of the coffee")
	if err := fs.Parse(args); err != nil {
		return err
	}
	conf, err := e.app.Subscribe(ctx, *plan, *coffee)
	if err != nil {
		return err
	}
	printConfirmation(e.out, conf)
	return nil
}

func promptIfEmpty(e *env, value, prompt string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprint(e.out, prompt)
	line, err := bufio.NewReader(e.in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
