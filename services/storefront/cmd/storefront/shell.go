package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"heritagecoffee/services/storefront/internal/catalog"
)

// lockedWriter serialises output from the prompt loop and catalog listeners.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

const shellHelp = `search <texte>   recherche avec temporisation
filter [flags]   mêmes options que products, sans -q
reset            réinitialise les filtres
help             cette aide
quit             quitter
Toute autre commande de storefront est acceptée (products, cart-add 3, ...).`

func runShell(ctx context.Context, e *env, _ []string) error {
	out := &lockedWriter{w: e.out}
	sub := *e
	sub.out = out
	// The prompt loop owns stdin; commands take passwords from flags.
	sub.in = strings.NewReader("")

	var searching atomic.Bool
	unsubscribe := e.app.Catalog.Subscribe(func(v catalog.View) {
		if v.Loading || !searching.CompareAndSwap(true, false) {
			return
		}
		fmt.Fprintln(out)
		printView(out, v)
		fmt.Fprint(out, "> ")
	})
	defer unsubscribe()

	fmt.Fprintln(out, "Heritage Coffee. Tapez help pour l'aide.")
	printView(out, e.app.Catalog.View())

	cmds := commands()
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(e.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(out, "> ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				return nil
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}
		name, rest, _ := strings.Cut(line, " ")
		switch name {
		case "quit", "exit":
			return nil
		case "help":
			fmt.Fprintln(out, shellHelp)
			continue
		case "search":
			searching.Store(true)
			e.app.Catalog.SetQuery(strings.TrimSpace(rest))
			continue
		case "filter":
			if err := runFilter(&sub, strings.Fields(rest)); err != nil {
				fmt.Fprintln(out, "erreur:", err)
			}
			continue
		case "reset":
			e.app.Catalog.ResetFilters()
			printView(out, e.app.Catalog.View())
			continue
		}
		cmd, ok := cmds[name]
		if !ok || name == "shell" || name == "dev-backend" {
			fmt.Fprintf(out, "commande inconnue %q\n", name)
			continue
		}
		if err := cmd.run(ctx, &sub, strings.Fields(rest)); err != nil {
			fmt.Fprintln(out, "erreur:", err)
		}
	}
}

func runFilter(e *env, args []string) error {
	fs := newFlagSet("filter", e.out)
	text := fs.String("text", "", "filter by name, description or tasting note")
	roasts := fs.String("roast", "", "comma-separated roast levels")
	profiles := fs.String("aroma", "", "comma-separated aroma profile names")
	minPrice := fs.String("min", "", "minimum price")
	maxPrice := fs.String("max", "", "maximum price")
	sortKey := fs.String("sort", string(catalog.SortDefault), "sort key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	filters, err := buildFilters(e.app.Catalog.View().Bounds, *text, *roasts, *profiles, *minPrice, *maxPrice, *sortKey)
	if err != nil {
		return err
	}
	e.app.Catalog.SetFilters(filters)
	printView(e.out, e.app.Catalog.View())
	return nil
}
