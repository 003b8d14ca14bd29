package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/timvw/reverse-turing/internal/model"
	"github.com/timvw/reverse-turing/internal/prompt"
)

func TestHumanAnswerVerbatim(t *testing.T) {
	var asked string
	h := NewHuman(HumanConfig{
		Catalog: prompt.New(5, false),
		Asker: AskerFunc(func(_ context.Context, q string) (string, error) {
			asked = q
			return "  dunno, Ohio i guess  ", nil
		}),
	})

	got, err := h.Answer(context.Background(), "Where did you grow up?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if got != "  dunno, Ohio i guess  " {
		t.Errorf("Answer = %q, want the typed line unchanged", got)
	}
	if asked != "Where did you grow up?" {
		t.Errorf("operator was shown %q, want the raw question", asked)
	}

	hist := h.History()
	if len(hist) != 2 {
		t.Fatalf("history length = %d, want 2", len(hist))
	}
	if hist[0].Speaker != model.SpeakerUser || hist[0].Content != prompt.New(5, false).Interrogated("Where did you grow up?") {
		t.Errorf("history[0] = %+v, want templated question", hist[0])
	}
	if hist[1] != model.AssistantMessage(got) {
		t.Errorf("history[1] = %+v, want typed line", hist[1])
	}
}

func TestHumanCannotInterrogate(t *testing.T) {
	h := NewHuman(HumanConfig{Catalog: prompt.New(5, false)})
	_, err := h.Interrogate(context.Background(), "", model.StateStart)
	if !errors.Is(err, ErrHumanInterrogator) {
		t.Errorf("err = %v, want ErrHumanInterrogator", err)
	}
	if h.Role() != model.RoleInterrogated || h.Provider() != "human" || h.Model() != "" {
		t.Errorf("identity = (%s, %s, %q)", h.Role(), h.Provider(), h.Model())
	}
}

func TestHumanInputFailure(t *testing.T) {
	eof := errors.New("EOF")
	failing := AskerFunc(func(context.Context, string) (string, error) { return "", eof })

	t.Run("degrade", func(t *testing.T) {
		h := NewHuman(HumanConfig{Catalog: prompt.New(5, false), Asker: failing})
		got, err := h.Answer(context.Background(), "still there?")
		if err != nil {
			t.Fatalf("Answer: %v", err)
		}
		if got != "[Error: EOF]" {
			t.Errorf("Answer = %q, want sentinel", got)
		}
		if len(h.History()) != 2 {
			t.Errorf("history length = %d, want 2", len(h.History()))
		}
	})

	t.Run("fail-fast", func(t *testing.T) {
		h := NewHuman(HumanConfig{Catalog: prompt.New(5, false), Asker: failing, Policy: PolicyFailFast})
		_, err := h.Answer(context.Background(), "still there?")
		if !errors.Is(err, eof) {
			t.Fatalf("err = %v, want wrapped EOF", err)
		}
		if len(h.History()) != 0 {
			t.Errorf("history length = %d, want 0", len(h.History()))
		}
	})
}

func TestHumanCancelAborts(t *testing.T) {
	tests := []struct {
		name      string
		asker     Asker
		interrupt bool
	}{
		{"operator cancels input", AskerFunc(func(context.Context, string) (string, error) {
			return "", ErrCancelled
		}), false},
		{"run interrupted", AskerFunc(func(ctx context.Context, _ string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			h := NewHuman(HumanConfig{Catalog: prompt.New(5, false), Asker: tt.asker})

			if tt.interrupt {
				go cancel()
			}
			got, err := h.Answer(ctx, "still there?")
			if err == nil {
				t.Fatalf("Answer = %q, want error", got)
			}
			if !errors.Is(err, ErrCancelled) && !errors.Is(err, context.Canceled) {
				t.Errorf("err = %v, want cancellation", err)
			}
			if len(h.History()) != 0 {
				t.Errorf("history length = %d, want 0", len(h.History()))
			}
		})
	}
}
