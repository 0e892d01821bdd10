package output

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/adamancini/swapup/internal/update"
)

// lineStep is how many percent a plain (non-inline) renderer waits between
// transfer lines.
const lineStep = 10

// Progress renders progress events on a console. Inline mode rewrites one
// line with carriage returns; otherwise transfer lines are thinned out to
// every lineStep percent.
type Progress struct {
	mu      sync.Mutex
	w       io.Writer
	inline  bool
	width   int // length of the current inline line
	lastPct int
}

// NewProgress creates a renderer writing to w.
func NewProgress(w io.Writer, inline bool) *Progress {
	return &Progress{w: w, inline: inline, lastPct: update.Indeterminate}
}

// Sink returns a progress sink feeding this renderer.
func (p *Progress) Sink() update.ProgressSink {
	return p.Render
}

// Render prints one event.
func (p *Progress) Render(e update.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	line := e.Message
	if !e.Indeterminate() {
		line = fmt.Sprintf("%s (%d%%)", e.Message, e.Percent)
	}

	if p.inline {
		pad := ""
		if n := p.width - len(line); n > 0 {
			pad = strings.Repeat(" ", n)
		}
		_, _ = fmt.Fprintf(p.w, "\r%s%s", line, pad)
		p.width = len(line)
		return
	}

	if e.BytesTransferred > 0 && !e.Indeterminate() && e.Percent < 100 {
		if p.lastPct != update.Indeterminate && e.Percent-p.lastPct < lineStep {
			return
		}
		p.lastPct = e.Percent
	} else if e.BytesTransferred > 0 && e.Indeterminate() {
		// unknown length: nothing useful to thin against
		return
	}
	_, _ = fmt.Fprintln(p.w, line)
}

// Done ends an inline line so later output starts on a fresh line.
func (p *Progress) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.inline && p.width > 0 {
		_, _ = fmt.Fprintln(p.w)
		p.width = 0
	}
	p.lastPct = update.Indeterminate
}
