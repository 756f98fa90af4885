package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/roach88/changewatch/internal/diff"
	"github.com/roach88/changewatch/internal/record"
)

// ANSI escape codes.
const (
	ansiGreen  = "\033[92m"
	ansiRed    = "\033[91m"
	ansiYellow = "\033[93m"
	ansiBlue   = "\033[94m"
	ansiBold   = "\033[1m"
	ansiReset  = "\033[0m"
)

const ruleWidth = 60

// Console prints reports to a writer. Safe for concurrent use; each event
// is written with a single Write call.
type Console struct {
	mu      sync.Mutex
	w       io.Writer
	color   bool
	verbose bool
}

// ConsoleOption configures a Console.
type ConsoleOption func(*Console)

// WithColor enables ANSI colours.
func WithColor(enabled bool) ConsoleOption {
	return func(c *Console) {
		c.color = enabled
	}
}

// WithVerbose shows up to three fields per item and per-field old/new values.
func WithVerbose(enabled bool) ConsoleOption {
	return func(c *Console) {
		c.verbose = enabled
	}
}

// NewConsole creates a console channel writing to w.
func NewConsole(w io.Writer, opts ...ConsoleOption) *Console {
	c := &Console{w: w}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements Notifier.
func (c *Console) Name() string { return "console" }

// Notify implements Notifier. Every event is printed, including reports
// without changes.
func (c *Console) Notify(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var buf bytes.Buffer
	c.render(&buf, ev)

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.w.Write(buf.Bytes())
	return err
}

func (c *Console) paint(text, color string) string {
	if !c.color {
		return text
	}
	return color + text + ansiReset
}

func (c *Console) render(buf *bytes.Buffer, ev Event) {
	rule := strings.Repeat("=", ruleWidth)

	header := "Change Report"
	if ev.Kind == EventBaseline {
		header = "Baseline"
	}
	if ev.Source != "" {
		header += " for " + ev.Source
	}

	fmt.Fprintf(buf, "\n%s\n%s\n%s\n", rule, c.paint(header, ansiBold+ansiBlue), rule)

	if ev.Kind == EventBaseline {
		fmt.Fprintf(buf, "%s\n%s\n\n", c.paint(fmt.Sprintf("Captured %d items", ev.ItemCount), ansiGreen), rule)
		return
	}

	report := ev.Report
	if report == nil || !report.HasChanges() {
		fmt.Fprintf(buf, "%s\n%s\n\n", c.paint("No changes detected", ansiGreen), rule)
		return
	}

	fmt.Fprintf(buf, "Summary: %s\n%s\n", report.Summary(), strings.Repeat("-", ruleWidth))

	if items := report.NewItems(); len(items) > 0 {
		fmt.Fprintf(buf, "\n%s\n", c.paint(fmt.Sprintf("NEW ITEMS (%d):", len(items)), ansiGreen))
		shown, more := head(items, consoleItemLimit)
		for _, item := range shown {
			c.writeItem(buf, c.itemLine(item), ansiGreen)
		}
		writeMore(buf, more)
	}

	if items := report.RemovedItems(); len(items) > 0 {
		fmt.Fprintf(buf, "\n%s\n", c.paint(fmt.Sprintf("REMOVED ITEMS (%d):", len(items)), ansiRed))
		shown, more := head(items, consoleItemLimit)
		for _, item := range shown {
			c.writeItem(buf, c.itemLine(item), ansiRed)
		}
		writeMore(buf, more)
	}

	if changes := report.ModifiedItems(); len(changes) > 0 {
		fmt.Fprintf(buf, "\n%s\n", c.paint(fmt.Sprintf("MODIFIED ITEMS (%d):", len(changes)), ansiYellow))
		shown, more := head(changes, consoleItemLimit)
		for _, change := range shown {
			c.writeModification(buf, change)
		}
		writeMore(buf, more)
	}

	fmt.Fprintf(buf, "\n%s\n\n", rule)
}

func (c *Console) itemLine(item record.Record) string {
	if c.verbose {
		return summarize(item)
	}
	return firstValue(item)
}

func (c *Console) writeItem(buf *bytes.Buffer, text, color string) {
	fmt.Fprintf(buf, "   %s %s\n", c.paint("->", color), text)
}

func (c *Console) writeModification(buf *bytes.Buffer, change diff.ItemChange) {
	fmt.Fprintf(buf, "   %s Item: %s\n", c.paint("->", ansiYellow), change.ID)
	if !c.verbose {
		return
	}
	for _, f := range change.Fields() {
		fc := change.ChangedFields[f]
		fmt.Fprintf(buf, "      %s: %s -> %s\n", f, c.paint(fc.Old.String(), ansiRed), c.paint(fc.New.String(), ansiGreen))
	}
	if p := change.Price; p != nil && p.Old != nil && p.New != nil {
		fmt.Fprintf(buf, "      price change: %+.2f (%+.1f%%)\n", p.Difference(), p.PercentChange())
	}
}

func writeMore(buf *bytes.Buffer, more int) {
	if more > 0 {
		fmt.Fprintf(buf, "   ... and %d more\n", more)
	}
}
