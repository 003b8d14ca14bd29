// Package prompt holds the text templates injected into each participant's
// history. Templates are loaded from prompts/*.md at compile time and carry
// single placeholder tokens that are filled with plain string replacement.
package prompt

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	"github.com/timvw/reverse-turing/internal/model"
)

// Placeholder tokens.
const (
	TokenResponse  = "<RESPONSE>"
	TokenQuestion  = "<QUESTION>"
	TokenQuestions = "<QUESTIONS>"
)

var (
	//go:embed prompts/interrogator_system.md
	interrogatorSystem string
	//go:embed prompts/interrogator_start.md
	interrogatorStart string
	//go:embed prompts/interrogator_middle.md
	interrogatorMiddle string
	//go:embed prompts/interrogator_end.md
	interrogatorEnd string

	//go:embed prompts/interrogated_system.md
	interrogatedSystem string
	//go:embed prompts/interrogated_evasion.md
	interrogatedEvasion string
	//go:embed prompts/interrogated_user.md
	interrogatedUser string
)

// Substitute replaces every occurrence of token in template with value.
// A template without the token is returned unchanged.
func Substitute(template, token, value string) string {
	if token == "" || !strings.Contains(template, token) {
		return template
	}
	return strings.ReplaceAll(template, token, value)
}

// Catalog is the set of prompts for one conversation.
type Catalog struct {
	rounds  int
	evasion bool
}

// New returns a catalog for a conversation of the given number of rounds.
// When evasion is set the interrogated party gets the evasion system prompt.
func New(rounds int, evasion bool) *Catalog {
	return &Catalog{rounds: rounds, evasion: evasion}
}

// System returns the system prompt for role.
func (c *Catalog) System(role model.Role) string {
	switch role {
	case model.RoleInterrogator:
		return Substitute(trim(interrogatorSystem), TokenQuestions, strconv.Itoa(c.rounds))
	case model.RoleInterrogated:
		if c.evasion {
			return trim(interrogatedEvasion)
		}
		return trim(interrogatedSystem)
	default:
		return ""
	}
}

// Interrogator returns the user prompt for an interrogator turn in the
// given state. The start prompt ignores lastAnswer.
func (c *Catalog) Interrogator(state model.State, lastAnswer string) (string, error) {
	switch state {
	case model.StateStart:
		return trim(interrogatorStart), nil
	case model.StateMiddle:
		return Substitute(trim(interrogatorMiddle), TokenResponse, lastAnswer), nil
	case model.StateEnd:
		return Substitute(trim(interrogatorEnd), TokenResponse, lastAnswer), nil
	default:
		return "", fmt.Errorf("unknown conversation state %q", state)
	}
}

// Interrogated returns the user prompt wrapping a question for the
// interrogated party.
func (c *Catalog) Interrogated(question string) string {
	return Substitute(trim(interrogatedUser), TokenQuestion, question)
}

// trim drops the trailing newline editors leave at the end of the files.
func trim(s string) string {
	return strings.TrimRight(s, "\r\n")
}
