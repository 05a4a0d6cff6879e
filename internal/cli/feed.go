package cli

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/kisan-sarthi/backend/internal/feed"
	"github.com/kisan-sarthi/backend/internal/models"
)

func feedCmd(e *env) *cobra.Command {
	var (
		kind  string
		limit int
		all   bool
		where string
	)
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Browse listings page by page",
		Long: "Browse listings page by page. Press Enter to load the next page, " +
			"or q to stop. With --all every page is loaded without prompting.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := models.ParseCollectionKind(kind)
			if err != nil {
				return err
			}
			fetcher := e.api.Listings(k)
			if where != "" {
				attr, value, ok := strings.Cut(where, "=")
				if !ok || attr == "" {
					return fmt.Errorf("--where must be attribute=value, got %q", where)
				}
				fetcher = fetcher.Where(attr, value)
			}
			return runFeed(cmd, e, fetcher, limit, all)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(models.KindProduct), "listing kind: product or land")
	cmd.Flags().IntVar(&limit, "limit", feed.DefaultLimit, "page size")
	cmd.Flags().BoolVar(&all, "all", false, "load every page without prompting")
	cmd.Flags().StringVar(&where, "where", "", "filter on one attribute, e.g. city=Pune")
	return cmd
}

func runFeed(cmd *cobra.Command, e *env, fetcher feed.Fetcher, limit int, all bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	// settled receives one value per finished load, good or failed.
	settled := make(chan struct{}, 1)
	signal := func() {
		select {
		case settled <- struct{}{}:
		default:
		}
	}
	p := &listPrinter{w: out}

	loader, err := feed.New(fetcher, limit,
		feed.WithLogger(e.log),
		feed.WithPageHandler(func(_ int, added []models.Listing) {
			p.print(added)
			signal()
		}),
		feed.WithErrorHandler(func(err error) {
			fmt.Fprintf(errOut, "Could not load listings: %v\n", err)
			signal()
		}),
	)
	if err != nil {
		return err
	}
	defer loader.Close()

	loader.Initialize(ctx)
	<-settled

	if all {
		if err := loader.Drain(ctx); err != nil {
			return err
		}
		p.summary(loader.HasMore())
		return nil
	}

	visible := make(chan bool)
	loader.Observe(ctx, visible)

	in := bufio.NewScanner(cmd.InOrStdin())
	for loader.HasMore() {
		fmt.Fprintln(out, "-- Enter for more, q to quit --")
		if !in.Scan() || strings.EqualFold(strings.TrimSpace(in.Text()), "q") {
			break
		}
		select {
		case visible <- true:
		case <-ctx.Done():
			return ctx.Err()
		}
		select {
		case <-settled:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.summary(loader.HasMore())
	return nil
}

type listPrinter struct {
	mu sync.Mutex
	w  io.Writer
	n  int
}

func (p *listPrinter) print(items []models.Listing) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, l := range items {
		p.n++
		fmt.Fprintln(p.w, formatListing(p.n, l))
	}
}

func (p *listPrinter) summary(hasMore bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.n == 0:
		fmt.Fprintln(p.w, "No listings yet")
	case hasMore:
		fmt.Fprintf(p.w, "Showing %d listings\n", p.n)
	default:
		fmt.Fprintf(p.w, "End of feed, %d listings\n", p.n)
	}
}

func formatListing(n int, l models.Listing) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%3d. %s", n, l.Title)
	if l.Price > 0 {
		b.WriteString("  Rs " + strconv.FormatFloat(l.Price, 'f', -1, 64))
		if l.Kind == models.KindLand {
			b.WriteString("/month")
		}
	}
	if l.Quantity > 0 {
		b.WriteString("  " + strconv.FormatFloat(l.Quantity, 'f', -1, 64))
		if l.Unit != "" {
			b.WriteString(" " + l.Unit)
		}
	}
	var place []string
	for _, s := range []string{l.City, l.State} {
		if s != "" {
			place = append(place, s)
		}
	}
	if len(place) > 0 {
		b.WriteString("  (" + strings.Join(place, ", ") + ")")
	}
	if len(l.Media) > 0 {
		fmt.Fprintf(&b, "  [%d photos]", len(l.Media))
	}
	return b.String()
}
