package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/kisan-sarthi/backend/internal/models"
	"github.com/kisan-sarthi/backend/internal/session"
	"github.com/kisan-sarthi/backend/internal/wizard"
)

func listCmd(e *env) *cobra.Command {
	var (
		sets     []string
		files    []string
		progress string
		interval time.Duration
		step     int
	)
	cmd := &cobra.Command{
		Use:       "list product|land",
		Short:     "Post a new product or land listing",
		Long:      "Post a new listing. The form steps are walked in order with the values given by --set, then the --file images are uploaded and the listing is created.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(models.KindProduct), string(models.KindLand)},
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := session.RequireSession(e.sessions); err != nil {
				return err
			}
			kind, err := models.ParseCollectionKind(args[0])
			if err != nil {
				return err
			}
			values, err := parseSets(sets)
			if err != nil {
				return err
			}

			var reporter wizard.ProgressReporter
			switch progress {
			case "interval":
				reporter = wizard.NewIntervalReporter(interval, step)
			case "transfer":
				reporter = wizard.TransferReporter{}
			default:
				return fmt.Errorf("--progress must be interval or transfer, got %q", progress)
			}

			pp := newProgressPrinter(cmd.OutOrStdout())
			w, err := wizard.New(kind, e.api.Uploader(), e.api.Creator(),
				wizard.WithReporter(reporter),
				wizard.WithOwner(e.sessions.PrincipalID),
				wizard.WithLogger(e.log),
				wizard.WithNotify(pp.update),
			)
			if err != nil {
				return err
			}
			defer w.Close()

			return runList(cmd, w, values, files, pp)
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "field value as name=value, repeatable")
	cmd.Flags().StringArrayVar(&files, "file", nil, "image to upload, repeatable")
	cmd.Flags().StringVar(&progress, "progress", "interval", "progress reporting: interval or transfer")
	cmd.Flags().DurationVar(&interval, "interval", 200*time.Millisecond, "tick of the interval progress reporter")
	cmd.Flags().IntVar(&step, "step", 10, "percent added per tick of the interval reporter")
	return cmd
}

func runList(cmd *cobra.Command, w *wizard.Wizard, values map[string]any, paths []string, pp *progressPrinter) error {
	out := cmd.OutOrStdout()
	schema := w.Schema()

	for name := range values {
		if !schema.HasField(name) {
			return fmt.Errorf("unknown field %q for %s listings", name, schema.Kind)
		}
	}

	for i, st := range schema.Steps {
		fmt.Fprintf(out, "Step %d/%d: %s\n", i+1, schema.StepCount(), st.Title)
		page := make(map[string]any)
		for _, name := range st.Fields {
			if v, ok := values[name]; ok {
				page[name] = v
			}
		}
		if err := w.SetFields(page); err != nil {
			return err
		}
		fields := w.Fields()
		for _, name := range st.Fields {
			if v, ok := fields[name]; ok && v != "" {
				fmt.Fprintf(out, "  %s: %v\n", name, v)
			}
		}
		if i == len(schema.Steps)-1 {
			if err := selectFiles(w, paths, out); err != nil {
				return err
			}
			break
		}
		w.Next()
	}

	pp.start()
	rec, err := w.Submit(cmd.Context())
	pp.stop()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Created %s listing %s (%d photos)\n", rec.Kind, rec.ID, len(rec.Media))
	return nil
}

func selectFiles(w *wizard.Wizard, paths []string, out io.Writer) error {
	files := make([]wizard.File, 0, len(paths))
	for _, p := range paths {
		f, err := wizard.DiskFile(p)
		if err != nil {
			return err
		}
		files = append(files, f)
	}
	if err := w.SelectFiles(files); err != nil {
		return err
	}
	for _, f := range files {
		fmt.Fprintf(out, "  %s (%s, %d bytes)\n", f.Name, f.ContentType, f.Size)
	}
	return nil
}

// parseSets turns name=value flags into a field map.
func parseSets(sets []string) (map[string]any, error) {
	values := make(map[string]any, len(sets))
	for _, s := range sets {
		name, value, ok := strings.Cut(s, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("--set must be name=value, got %q", s)
		}
		values[name] = value
	}
	return values, nil
}

// progressPrinter writes one line per progress change while a submission runs.
type progressPrinter struct {
	mu     sync.Mutex
	w      io.Writer
	active bool
	last   map[string]int
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w, last: make(map[string]int)}
}

func (p *progressPrinter) start() {
	p.mu.Lock()
	p.active = true
	p.mu.Unlock()
}

func (p *progressPrinter) stop() {
	p.mu.Lock()
	p.active = false
	p.mu.Unlock()
}

func (p *progressPrinter) update(s wizard.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active {
		return
	}
	tasks := append([]wizard.UploadTask(nil), s.Files...)
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].File < tasks[j].File })
	for _, t := range tasks {
		if prev, seen := p.last[t.File]; seen && prev == t.Progress {
			continue
		}
		if t.Progress == wizard.ProgressPending {
			continue
		}
		p.last[t.File] = t.Progress
		if t.Progress == wizard.ProgressFailed {
			fmt.Fprintf(p.w, "  %s: %s\n", t.File, wizard.ProgressLabel(t.Progress))
			continue
		}
		fmt.Fprintf(p.w, "  %s: %d%% %s\n", t.File, t.Progress, wizard.ProgressLabel(t.Progress))
	}
}
