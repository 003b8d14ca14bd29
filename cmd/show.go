package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/timvw/reverse-turing/internal/console"
	"github.com/timvw/reverse-turing/internal/transcript"
)

var showCmd = &cobra.Command{
	Use:   "show <transcript>",
	Short: "Print a saved transcript",
	Long: `Print a transcript written by a previous run, in the same layout as a
live conversation. JSON and YAML transcripts are both accepted.`,
	Example: `  reverse-turing show logs/anthropic_vs_openai_20240801-140309.json`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := transcript.Load(args[0])
		if err != nil {
			return err
		}
		replay(console.NewPrinter(os.Stdout, console.ThemeByName(flagTheme)), rec)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
}

// replay feeds a saved record through the printer hooks.
func replay(p *console.Printer, rec *transcript.Record) {
	t := rec.Transcript()
	p.Header(participant(rec.Interrogator, rec.InterrogatorModel),
		participant(rec.Interrogated, rec.InterrogatedModel), len(t.Rounds))
	for _, r := range t.Rounds {
		p.Question(r.Number, r.Question)
		p.Round(r)
	}
	p.Verdict(t.FinalVerdict)
}

func participant(provider, model string) string {
	if model == "" {
		return provider
	}
	return fmt.Sprintf("%s (%s)", provider, model)
}
