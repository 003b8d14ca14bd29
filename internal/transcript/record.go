// Package transcript assembles finished conversations into records and
// persists them.
package transcript

import (
	"time"

	"github.com/google/uuid"

	"github.com/timvw/reverse-turing/internal/model"
)

// Participants names both sides of a conversation.
type Participants struct {
	Interrogator      string
	InterrogatorModel string
	Interrogated      string
	InterrogatedModel string
}

// Record is the persisted form of one conversation.
type Record struct {
	ID                string    `json:"id" yaml:"id"`
	Timestamp         time.Time `json:"timestamp" yaml:"timestamp"`
	Interrogator      string    `json:"interrogator" yaml:"interrogator"`
	InterrogatorModel string    `json:"interrogator_model,omitempty" yaml:"interrogator_model,omitempty"`
	Interrogated      string    `json:"interrogated" yaml:"interrogated"`
	InterrogatedModel string    `json:"interrogated_model,omitempty" yaml:"interrogated_model,omitempty"`
	// History holds one entry per round followed by a single verdict entry.
	History []Entry `json:"history" yaml:"history"`
}

// Entry is either a round or the final verdict.
type Entry struct {
	Round        int     `json:"round,omitempty" yaml:"round,omitempty"`
	Question     *string `json:"interrogator_question,omitempty" yaml:"interrogator_question,omitempty"`
	Answer       *string `json:"interrogated_response,omitempty" yaml:"interrogated_response,omitempty"`
	FinalVerdict *string `json:"final_verdict,omitempty" yaml:"final_verdict,omitempty"`
}

// IsVerdict reports whether e is the verdict entry.
func (e Entry) IsVerdict() bool { return e.FinalVerdict != nil }

// NewID returns a fresh conversation ID.
func NewID() string { return uuid.NewString() }

// Assemble builds the record for a finished conversation.
func Assemble(id string, at time.Time, p Participants, t *model.Transcript) *Record {
	r := &Record{
		ID:                id,
		Timestamp:         at.UTC(),
		Interrogator:      p.Interrogator,
		InterrogatorModel: p.InterrogatorModel,
		Interrogated:      p.Interrogated,
		InterrogatedModel: p.InterrogatedModel,
		History:           make([]Entry, 0, len(t.Rounds)+1),
	}
	for _, round := range t.Rounds {
		question, answer := round.Question, round.Answer
		r.History = append(r.History, Entry{
			Round:    round.Number,
			Question: &question,
			Answer:   &answer,
		})
	}
	verdict := t.FinalVerdict
	r.History = append(r.History, Entry{FinalVerdict: &verdict})
	return r
}

// Transcript converts the record back into rounds and verdict.
func (r *Record) Transcript() *model.Transcript {
	t := &model.Transcript{}
	for _, e := range r.History {
		if e.IsVerdict() {
			t.FinalVerdict = *e.FinalVerdict
			continue
		}
		t.Rounds = append(t.Rounds, model.Round{
			Number:   e.Round,
			Question: deref(e.Question),
			Answer:   deref(e.Answer),
		})
	}
	return t
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
