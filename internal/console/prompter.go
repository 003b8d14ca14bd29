package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/timvw/reverse-turing/internal/backend"
)

var _ backend.Asker = (*Prompter)(nil)

// Prompter reads the operator's replies. The question itself is shown by the
// Printer; the prompter only renders the input line. On a terminal that is an
// inline text input, otherwise one line is read per question.
type Prompter struct {
	in     io.Reader
	out    io.Writer
	styles styles
	tty    bool
	lines  *bufio.Reader
}

// NewPrompter returns a prompter reading from in and writing to out.
func NewPrompter(in io.Reader, out io.Writer, theme Theme) *Prompter {
	p := &Prompter{in: in, out: out, styles: newStyles(theme)}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.tty = true
	} else {
		p.lines = bufio.NewReader(in)
	}
	return p
}

// Ask returns the operator's line without the trailing newline. Any other
// whitespace is kept.
func (p *Prompter) Ask(ctx context.Context, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if p.tty {
		return p.askInteractive(ctx)
	}
	return p.askLine()
}

func (p *Prompter) askLine() (string, error) {
	fmt.Fprint(p.out, p.styles.label.Render("> "))

	line, err := p.lines.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("reading reply: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (p *Prompter) askInteractive(ctx context.Context) (string, error) {
	m := newAskModel(p.styles)
	prog := tea.NewProgram(m, tea.WithContext(ctx), tea.WithInput(p.in), tea.WithOutput(p.out))
	final, err := prog.Run()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("reading reply: %w", err)
	}
	result := final.(*askModel)
	if result.cancelled {
		return "", backend.ErrCancelled
	}
	fmt.Fprintln(p.out, p.styles.label.Render("> ")+p.styles.text.Render(result.input.Value()))
	return result.input.Value(), nil
}

// askModel is a single-reply bubbletea model.
type askModel struct {
	input     textinput.Model
	styles    styles
	done      bool
	cancelled bool
}

func newAskModel(s styles) *askModel {
	ti := textinput.New()
	ti.Placeholder = "Type your reply and press Enter..."
	ti.CharLimit = 2048
	ti.Width = 80
	ti.Prompt = "> "
	ti.PromptStyle = s.label
	ti.TextStyle = s.text
	ti.Focus()
	return &askModel{input: ti, styles: s}
}

func (m *askModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *askModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "enter":
			m.done = true
			return m, tea.Quit
		case "ctrl+c", "esc":
			m.cancelled = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *askModel) View() string {
	if m.done || m.cancelled {
		return ""
	}
	return m.input.View() + "\n" +
		m.styles.dim.Render("enter send • esc cancel")
}
