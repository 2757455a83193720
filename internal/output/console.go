// Package output renders generator progress and results: a console
// reporter, a JSON summary file and a fan-out combining reporters.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pulse-events/loadgen/internal/dispatch"
	"github.com/pulse-events/loadgen/internal/metrics"
)

const ruleWidth = 80

// RunInfo describes a run for the report header.
type RunInfo struct {
	RunID         string        `json:"run_id"`
	URL           string        `json:"url"`
	Tenants       []string      `json:"tenants"`
	RPS           int           `json:"rps"`
	Duration      time.Duration `json:"duration_ns"`
	DuplicateRate float64       `json:"duplicate_rate"`
	BadRate       float64       `json:"bad_rate"`
	Concurrency   int           `json:"concurrency"`
	Seed          uint64        `json:"seed"`
}

// ConsoleConfig contains configuration for Console.
type ConsoleConfig struct {
	Writer   io.Writer
	Quiet    bool
	NoColor  bool
	ForceTTY bool
}

// Console reports to a terminal or log stream. On a terminal progress
// rewrites a single line; elsewhere each update is a new line.
type Console struct {
	writer io.Writer
	scheme *ColorScheme
	isTTY  bool
	quiet  bool

	mu          sync.Mutex
	progressing bool
}

// NewConsole creates a console reporter.
func NewConsole(cfg ConsoleConfig) *Console {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}

	isTTY := cfg.ForceTTY || isTerminal(cfg.Writer)
	scheme := NoColorScheme()
	if !cfg.NoColor && isTTY && supportsColors() {
		scheme = DefaultColorScheme()
	}

	return &Console{
		writer: cfg.Writer,
		scheme: scheme,
		isTTY:  isTTY,
		quiet:  cfg.Quiet,
	}
}

// IsTTY returns whether the output is a terminal.
func (c *Console) IsTTY() bool {
	return c.isTTY
}

// PrintHeader prints the run parameters.
func (c *Console) PrintHeader(info RunInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.writeln(c.scheme.Title.Sprint("Starting load test"))
	c.writeln(fmt.Sprintf("   URL:            %s", info.URL))
	c.writeln(fmt.Sprintf("   Tenants:        %s", strings.Join(info.Tenants, ", ")))
	c.writeln(fmt.Sprintf("   RPS:            %d", info.RPS))
	c.writeln(fmt.Sprintf("   Duration:       %s", formatDuration(info.Duration)))
	c.writeln(fmt.Sprintf("   Duplicate rate: %s", formatPercent(info.DuplicateRate)))
	c.writeln(fmt.Sprintf("   Bad event rate: %s", formatPercent(info.BadRate)))
	if info.Concurrency > 1 {
		c.writeln(fmt.Sprintf("   Concurrency:    %d", info.Concurrency))
	}
	c.writeln(c.scheme.Muted.Sprintf("   Seed: %d  Run: %s", info.Seed, info.RunID))
	c.writeln("")
}

// OnProgress prints a one-line status update.
func (c *Console) OnProgress(p metrics.Progress) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	line := c.progressLine(p)
	if c.isTTY {
		c.write("\r\033[K" + line)
		c.progressing = true
		return
	}
	c.writeln(line)
}

func (c *Console) progressLine(p metrics.Progress) string {
	p95 := "-"
	if p.P95 != nil {
		p95 = fmt.Sprintf("%.1fms", *p.P95)
	}
	return fmt.Sprintf("[%s] Sent: %s | Success: %s | Dup: %s | Rate limited: %s | Bad: %s | Error: %s | RPS: %.1f (avg %.1f) | P95: %s",
		formatDuration(p.Elapsed),
		formatNumber(p.Total),
		c.scheme.Success.Sprint(p.Counts.Success),
		c.scheme.Duplicate.Sprint(p.Counts.Duplicate),
		c.scheme.Warn.Sprint(p.Counts.RateLimited),
		c.scheme.Warn.Sprint(p.Counts.BadRequest),
		c.scheme.Error.Sprint(p.Counts.Error),
		p.RPS,
		p.AvgRPS,
		p95,
	)
}

// OnFinal prints the final report.
func (c *Console) OnFinal(s metrics.Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.progressing {
		c.writeln("")
		c.progressing = false
	}

	rule := c.scheme.Rule.Sprint(strings.Repeat("=", ruleWidth))
	c.writeln("")
	c.writeln(rule)
	c.writeln(c.scheme.Title.Sprint("LOAD TEST COMPLETE"))
	c.writeln(rule)
	c.writeln("")

	c.writeln(fmt.Sprintf("Total Duration:  %.2f seconds", s.Elapsed.Seconds()))
	c.writeln(fmt.Sprintf("Total Requests:  %s", c.scheme.Value.Sprint(formatNumber(s.Total))))

	for _, k := range dispatch.Kinds {
		count := s.Counts.Get(k)
		c.writeln(fmt.Sprintf("%-16s %s (%s)",
			kindLabel(k)+":",
			c.colorFor(k).Sprint(formatNumber(count)),
			formatPercent(s.Rates.Get(k))))
	}
	if s.Timeouts > 0 {
		c.writeln(c.scheme.Muted.Sprintf("  of which timeouts: %d", s.Timeouts))
	}

	if s.Injected.ReplayedKeys > 0 || s.Injected.MalformedEvents > 0 {
		c.writeln("")
		c.writeln(c.scheme.Label.Sprint("Injected faults:"))
		c.writeln(fmt.Sprintf("   Replayed keys:    %s", formatNumber(s.Injected.ReplayedKeys)))
		c.writeln(fmt.Sprintf("   Malformed events: %s", formatNumber(s.Injected.MalformedEvents)))
	}

	if s.Latency != nil {
		c.writeln("")
		c.writeln(c.scheme.Label.Sprint("Latency Statistics (ms):"))
		c.writeln(fmt.Sprintf("   Average: %.2f", s.Latency.Mean))
		c.writeln(fmt.Sprintf("   Min:     %.2f", s.Latency.Min))
		c.writeln(fmt.Sprintf("   Max:     %.2f", s.Latency.Max))
		if s.Percentiles != nil {
			c.writeln(fmt.Sprintf("   P50:     %.2f", s.Percentiles.P50))
			c.writeln(fmt.Sprintf("   P95:     %.2f", s.Percentiles.P95))
			c.writeln(fmt.Sprintf("   P99:     %.2f", s.Percentiles.P99))
		}
	}

	c.writeln("")
	c.writeln(fmt.Sprintf("Actual RPS: %s", c.scheme.Value.Sprintf("%.2f", s.ActualRPS)))
	c.writeln(rule)
}

// PrintInterrupted notes that the run was stopped early.
func (c *Console) PrintInterrupted() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.progressing {
		c.writeln("")
		c.progressing = false
	}
	c.writeln("")
	c.writeln(c.scheme.Warn.Sprint("Load test interrupted, draining in-flight requests"))
}

func (c *Console) colorFor(k dispatch.Kind) interface{ Sprint(a ...interface{}) string } {
	switch k {
	case dispatch.KindSuccess:
		return c.scheme.Success
	case dispatch.KindDuplicate:
		return c.scheme.Duplicate
	case dispatch.KindRateLimited, dispatch.KindBadRequest:
		return c.scheme.Warn
	default:
		return c.scheme.Error
	}
}

func kindLabel(k dispatch.Kind) string {
	switch k {
	case dispatch.KindSuccess:
		return "Successful"
	case dispatch.KindDuplicate:
		return "Duplicates"
	case dispatch.KindRateLimited:
		return "Rate Limited"
	case dispatch.KindBadRequest:
		return "Bad Requests"
	default:
		return "Errors"
	}
}

// write writes to the output without a newline.
func (c *Console) write(s string) {
	fmt.Fprint(c.writer, s)
}

// writeln writes to the output with a newline.
func (c *Console) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %02ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
}

// formatPercent renders a fraction in [0, 1] with one decimal.
func formatPercent(f float64) string {
	return fmt.Sprintf("%.1f%%", f*100)
}

// formatNumber formats a number with thousands separators.
func formatNumber(n int64) string {
	str := fmt.Sprintf("%d", n)
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	if len(str) <= 3 {
		return str
	}

	var result strings.Builder
	offset := len(str) % 3
	if offset > 0 {
		result.WriteString(str[:offset])
	}
	for i := offset; i < len(str); i += 3 {
		if result.Len() > 0 {
			result.WriteString(",")
		}
		result.WriteString(str[i : i+3])
	}
	return result.String()
}
