package progress

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
)

// Reporter provides progress feedback while a turn runs.
type Reporter interface {
	// Start begins a report. A negative total shows an indeterminate spinner.
	Start(total int)
	Update(current int, message string)
	Finish()
}

// NewReporter returns a TerminalReporter if running in an interactive terminal,
// or a CIReporter if the CI environment variable is set.
func NewReporter() Reporter {
	if os.Getenv("CI") != "" || os.Getenv("GITHUB_ACTIONS") != "" {
		return &CIReporter{w: os.Stderr}
	}
	return &TerminalReporter{}
}

// TerminalReporter displays a progress bar in the terminal.
type TerminalReporter struct {
	bar *progressbar.ProgressBar
}

func (r *TerminalReporter) Start(total int) {
	r.bar = progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Working"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
}

func (r *TerminalReporter) Update(current int, message string) {
	if r.bar != nil {
		r.bar.Describe(message)
		_ = r.bar.Set(current)
	}
}

func (r *TerminalReporter) Finish() {
	if r.bar != nil {
		_ = r.bar.Finish()
	}
}

// CIReporter prints line-by-line progress suitable for logs.
type CIReporter struct {
	w     io.Writer
	total int
}

// NewCIReporter returns a CIReporter writing to w.
func NewCIReporter(w io.Writer) *CIReporter {
	return &CIReporter{w: w}
}

func (r *CIReporter) Start(total int) {
	r.total = total
}

func (r *CIReporter) Update(current int, message string) {
	if r.total > 0 {
		fmt.Fprintf(r.w, "[%d/%d] %s\n", current, r.total, message)
		return
	}
	fmt.Fprintf(r.w, "[%d] %s\n", current, message)
}

func (r *CIReporter) Finish() {
	fmt.Fprintln(r.w, "Done")
}

// Turn counts the progress messages of one assistant turn and forwards
// them to a Reporter. It satisfies the volley notifier interface.
type Turn struct {
	r Reporter
	n int
}

// StartTurn starts r and returns a notifier for one turn.
func StartTurn(r Reporter, total int) *Turn {
	r.Start(total)
	return &Turn{r: r}
}

// Notify advances the report by one step.
func (t *Turn) Notify(msg string) {
	t.n++
	t.r.Update(t.n, msg)
}

// Steps returns how many messages were received.
func (t *Turn) Steps() int { return t.n }

// Finish ends the report.
func (t *Turn) Finish() { t.r.Finish() }
