// Package progress renders scan events as a single redrawn terminal line.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/openeuler-mirror/xlin-sbom/pkg/engine"
)

var (
	phaseStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00FF99"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAA00"))
	pathStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
)

const clearLine = "\r\x1b[2K"

// Renderer draws a phase header plus a progress bar on the terminal. It
// implements engine.Sink and tolerates concurrent publishers. When the
// output is not a terminal, or rendering was disabled, every call is a
// no-op and the scan output stays machine-readable.
type Renderer struct {
	out     io.Writer
	enabled bool
	width   func() int

	mu      sync.Mutex
	lastPct int
	inBar   bool
}

// New returns a renderer writing to stderr.
func New(disabled bool) *Renderer {
	fd := int(os.Stderr.Fd())
	return &Renderer{
		out:     os.Stderr,
		enabled: !disabled && term.IsTerminal(fd),
		width: func() int {
			w, _, err := term.GetSize(fd)
			if err != nil || w <= 0 {
				return 80
			}
			return w
		},
	}
}

// Publish implements engine.Sink.
func (r *Renderer) Publish(ev engine.Event) {
	if !r.enabled {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Kind {
	case engine.EventPhase:
		r.finishBar()
		r.lastPct = -1
		fmt.Fprintln(r.out, phaseStyle.Render("==> "+ev.Detail))
	case engine.EventProgress:
		r.draw(ev.Done, ev.Total, ev.Path)
	case engine.EventPartialFailure:
		r.interruptBar()
		fmt.Fprintln(r.out, warnStyle.Render(fmt.Sprintf("  ! %s: %v", ev.Path, ev.Err)))
	}
}

// Close clears any in-flight bar line. Call once after the scan.
func (r *Renderer) Close() {
	if !r.enabled {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finishBar()
}

// draw redraws the bar in place. Worker updates can arrive out of order, so
// the percentage only ever moves forward within a phase.
func (r *Renderer) draw(done, total int, current string) {
	if total <= 0 {
		return
	}
	pct := done * 100 / total
	if pct > 100 {
		pct = 100
	}
	if pct < r.lastPct {
		return
	}
	r.lastPct = pct
	r.inBar = true

	width := r.width()
	barWidth := width - len(current) - 12 // brackets, percentage, spaces
	if barWidth > 40 {
		barWidth = 40
	}
	if barWidth < 10 {
		barWidth = 10
	}

	filled := pct * barWidth / 100
	var bar strings.Builder
	for i := 0; i < barWidth; i++ {
		switch {
		case i < filled-1:
			bar.WriteByte('=')
		case i == filled-1:
			bar.WriteByte('>')
		default:
			bar.WriteByte(' ')
		}
	}

	label := trimPath(current, width-barWidth-12)
	fmt.Fprintf(r.out, "%s[%s] %3d%% %s", clearLine, bar.String(), pct, pathStyle.Render(label))
}

// interruptBar clears the bar so a full line can be printed; the next
// progress event redraws it.
func (r *Renderer) interruptBar() {
	if r.inBar {
		fmt.Fprint(r.out, clearLine)
		r.inBar = false
	}
}

func (r *Renderer) finishBar() {
	if r.inBar {
		fmt.Fprint(r.out, clearLine)
		r.inBar = false
	}
}

// trimPath keeps the tail of long paths; the filename end is the part that
// tells entries apart.
func trimPath(p string, max int) string {
	if max < 8 {
		max = 8
	}
	if len(p) <= max {
		return p
	}
	return "..." + p[len(p)-(max-3):]
}
