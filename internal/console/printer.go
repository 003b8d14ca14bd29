package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/timvw/reverse-turing/internal/backend"
	"github.com/timvw/reverse-turing/internal/model"
)

const ruleWidth = 60

// Printer writes conversation progress to a terminal. Its methods match the
// orchestrator hooks.
type Printer struct {
	mu     *sync.Mutex
	w      io.Writer
	styles styles
	// prefix tags every line, used to tell batch conversations apart.
	prefix string
}

// NewPrinter returns a printer writing to w.
func NewPrinter(w io.Writer, theme Theme) *Printer {
	return &Printer{mu: &sync.Mutex{}, w: w, styles: newStyles(theme)}
}

// WithPrefix returns a printer sharing w whose lines start with prefix.
func (p *Printer) WithPrefix(prefix string) *Printer {
	return &Printer{mu: p.mu, w: p.w, styles: p.styles, prefix: prefix}
}

// Header announces the participants.
func (p *Printer) Header(interrogator, interrogated string, rounds int) {
	p.write(
		p.styles.title.Render(fmt.Sprintf("%s interrogates %s (%d rounds)", interrogator, interrogated, rounds)),
		p.styles.rule.Render(strings.Repeat("─", ruleWidth)),
	)
}

// Question prints an interrogator question.
func (p *Printer) Question(round int, question string) {
	p.write(p.styles.label.Render(fmt.Sprintf("Round %d", round)) + "  " +
		p.styles.label.Render("Q:") + " " + p.turnStyle(question, p.styles.interrogator).Render(question))
}

// Round prints the answer of a finished round.
func (p *Printer) Round(r model.Round) {
	p.write(
		p.styles.label.Render("A:")+" "+p.turnStyle(r.Answer, p.styles.interrogated).Render(r.Answer),
		"",
	)
}

// Verdict prints the interrogator's final message.
func (p *Printer) Verdict(verdict string) {
	p.write(
		p.styles.rule.Render(strings.Repeat("─", ruleWidth)),
		p.styles.label.Render("Verdict:")+" "+p.turnStyle(verdict, p.styles.verdict).Render(verdict),
	)
}

// Saved reports where the transcript was written.
func (p *Printer) Saved(path string) {
	p.write(p.styles.dim.Render("Transcript saved to " + path))
}

// Failed reports an aborted conversation.
func (p *Printer) Failed(err error) {
	p.write(p.styles.err.Render("Conversation failed: " + err.Error()))
}

// turnStyle renders degraded turns in the error color.
func (p *Printer) turnStyle(text string, normal lipgloss.Style) lipgloss.Style {
	if backend.IsSentinel(text) {
		return p.styles.err
	}
	return normal
}

func (p *Printer) write(lines ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, line := range lines {
		if p.prefix != "" && line != "" {
			line = p.styles.dim.Render("["+p.prefix+"]") + " " + line
		}
		fmt.Fprintln(p.w, line)
	}
}
