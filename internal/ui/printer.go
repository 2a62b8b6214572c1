package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/Aman-CERP/corpusctl/internal/async"
	"github.com/Aman-CERP/corpusctl/internal/manifest"
	"github.com/Aman-CERP/corpusctl/internal/naming"
	"github.com/Aman-CERP/corpusctl/internal/provision"
	"github.com/Aman-CERP/corpusctl/internal/search"
)

// Printer writes human-readable command output.
type Printer struct {
	mu     sync.Mutex
	out    io.Writer
	styles Styles
	color  bool
}

// NewPrinter creates a printer. Color is used only on a terminal without NO_COLOR.
func NewPrinter(out io.Writer, noColor bool) *Printer {
	color := UseColor(out, noColor)
	return &Printer{out: out, styles: GetStyles(!color), color: color}
}

func (p *Printer) println(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintln(p.out, s)
}

// Header prints a bold heading.
func (p *Printer) Header(msg string) {
	p.println(p.styles.Header.Render(msg))
}

// Success prints a success line.
func (p *Printer) Success(format string, args ...any) {
	p.println(p.styles.Success.Render("✓") + " " + fmt.Sprintf(format, args...))
}

// Warning prints a warning line.
func (p *Printer) Warning(format string, args ...any) {
	p.println(p.styles.Warning.Render("!") + " " + fmt.Sprintf(format, args...))
}

// Error prints an error line.
func (p *Printer) Error(format string, args ...any) {
	p.println(p.styles.Error.Render("✗") + " " + fmt.Sprintf(format, args...))
}

// Info prints an indented detail line.
func (p *Printer) Info(format string, args ...any) {
	p.println("  " + fmt.Sprintf(format, args...))
}

// Progress prints one update from a running chain.
func (p *Printer) Progress(c async.ChainProgress) {
	label := p.styles.Label.Render(fmt.Sprintf("[%s/%s]", c.Prefix, c.Variant))
	var state string
	switch c.State {
	case provision.StateDone:
		state = p.styles.Success.Render(string(c.State))
	case provision.StateFailed:
		state = p.styles.Error.Render(string(c.State))
	default:
		state = p.styles.Stage.Render(string(c.State))
	}

	line := label + " " + state
	if c.State == provision.StatePolling && c.Polls > 0 {
		line += fmt.Sprintf(" poll=%d status=%s processed=%d failed=%d",
			c.Polls, c.JobStatus, c.ItemsProcessed, c.ItemsFailed)
	}
	if c.State == provision.StateDone {
		line += " in " + c.Elapsed().Round(time.Millisecond).String()
	}
	if c.Error != "" {
		line += " " + p.styles.Error.Render(c.Error)
	}
	p.println(line)
}

// Job prints the terminal outcome of an indexer run.
func (p *Printer) Job(prefix string, job provision.JobResult) {
	switch job.Status {
	case search.JobSuccess:
		p.Success("%s: indexer %s succeeded (%d items, %d polls)", prefix, job.Indexer, job.Detail.ItemsProcessed, job.Polls)
	case search.JobTransientFailure:
		p.Warning("%s: indexer %s finished with a transient failure: %s", prefix, job.Indexer, job.Detail.ErrorMessage)
	default:
		p.Error("%s: indexer %s is %s: %s", prefix, job.Indexer, job.Status, job.Detail.ErrorMessage)
	}
	if job.Detail.ItemsFailed > 0 {
		p.Info("%d items failed", job.Detail.ItemsFailed)
	}
}

// Manifest prints the resource names of one chain.
func (p *Printer) Manifest(m provision.Manifest) {
	roles := m.Roles()
	p.Header(fmt.Sprintf("%s (%s)", m.Prefix, m.Variant))
	for _, role := range naming.Roles {
		if name, ok := roles[role]; ok {
			p.Info("%s %s", p.styles.Label.Render(fmt.Sprintf("%-15s", role)), name)
		}
	}
}

// Manifests prints stored manifests as a table.
func (p *Printer) Manifests(recs []manifest.Record) {
	if len(recs) == 0 {
		p.Info("no provisioned prefixes")
		return
	}
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		status := r.JobStatus
		if status == "" {
			status = "-"
		}
		rows = append(rows, []string{
			r.Prefix, string(r.Variant), r.Index, r.Indexer, status, formatAge(r.CreatedAt),
		})
	}
	p.table([]string{"PREFIX", "VARIANT", "INDEX", "INDEXER", "JOB", "CREATED"}, rows, 4)
}

// Resources prints which resources of a chain exist.
func (p *Printer) Resources(states []provision.ResourceState) {
	rows := make([][]string, 0, len(states))
	for _, s := range states {
		state := "present"
		switch {
		case s.Err != nil:
			state = "error: " + s.Err.Error()
		case !s.Exists:
			state = "absent"
		}
		rows = append(rows, []string{string(s.Role), s.Name, state})
	}
	p.table([]string{"ROLE", "NAME", "STATE"}, rows, 2)
}

// IndexerStatus prints a status snapshot.
func (p *Printer) IndexerStatus(name string, st search.IndexerStatus) {
	p.Header("Indexer " + name)
	p.Info("status:    %s (service %s)", p.statusText(st.Status), st.ServiceStatus)
	p.Info("processed: %d", st.ItemsProcessed)
	p.Info("failed:    %d", st.ItemsFailed)
	if !st.StartTime.IsZero() {
		p.Info("started:   %s", st.StartTime.Local().Format(time.DateTime))
	}
	if !st.EndTime.IsZero() {
		p.Info("ended:     %s", st.EndTime.Local().Format(time.DateTime))
	}
	if st.ErrorMessage != "" {
		p.Info("error:     %s", p.styles.Error.Render(st.ErrorMessage))
	}
}

// TeardownFailures prints each resource that could not be deleted.
func (p *Printer) TeardownFailures(errs []*provision.TeardownError) {
	sort.SliceStable(errs, func(i, j int) bool { return errs[i].Resource < errs[j].Resource })
	for _, e := range errs {
		p.Error("%s %s: %v", e.Role, e.Resource, e.Cause)
	}
}

// JSON writes v as indented JSON.
func (p *Printer) JSON(v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *Printer) statusText(s search.JobStatus) string {
	switch s {
	case search.JobSuccess:
		return p.styles.Success.Render(s.String())
	case search.JobTransientFailure, search.JobRunning:
		return p.styles.Warning.Render(s.String())
	case search.JobFailed:
		return p.styles.Error.Render(s.String())
	default:
		return s.String()
	}
}

// table renders rows; statusCol, if in range, is colored by value.
func (p *Printer) table(headers []string, rows [][]string, statusCol int) {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(p.styles.Border).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return p.styles.Header.Padding(0, 1)
			}
			st := p.styles.Cell
			if col == statusCol && row >= 0 && row < len(rows) {
				switch v := rows[row][col]; {
				case v == "success" || v == "present":
					st = st.Inherit(p.styles.Success)
				case v == "failed" || strings.HasPrefix(v, "error"):
					st = st.Inherit(p.styles.Error)
				case v == "transientFailure" || v == "absent":
					st = st.Inherit(p.styles.Warning)
				}
			}
			return st
		})
	p.println(t.Render())
}

// formatAge formats a time relative to now for display.
func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	diff := time.Since(t)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	default:
		return t.Local().Format("2006-01-02 15:04")
	}
}
