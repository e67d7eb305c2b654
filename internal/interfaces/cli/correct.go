package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/turtacn/ClinLink/internal/intelligence/spell_checker"
)

// NewCorrectCmd creates the correct command.
func NewCorrectCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "correct WORD...",
		Short: "Spell-correct words against the vocabulary and concept names",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()

			engine, err := loadEngine(ctx, cliCtx)
			if err != nil {
				return err
			}
			defer engine.Close()

			return PrintResult(cmd, correctWords(engine.Corrector(), args, limit))
		},
	}
	cmd.Flags().IntVar(&limit, "suggestions", 3, "maximum number of suggestions per word")
	return cmd
}

type correction struct {
	Word        string                     `json:"word"`
	Correction  string                     `json:"correction"`
	Changed     bool                       `json:"changed"`
	Known       bool                       `json:"known"`
	Suggestions []spell_checker.Suggestion `json:"suggestions,omitempty"`
}

type correctOutput struct {
	Words []correction `json:"words"`
}

func correctWords(c *spell_checker.Corrector, words []string, limit int) *correctOutput {
	out := &correctOutput{}
	for _, w := range words {
		lower := strings.ToLower(w)
		fixed, changed := c.Correct(lower)
		if !changed {
			fixed = lower
		}
		item := correction{Word: w, Correction: fixed, Changed: changed, Known: c.Known(lower)}
		if !item.Known {
			item.Suggestions = c.Suggest(lower)
			if limit >= 0 && len(item.Suggestions) > limit {
				item.Suggestions = item.Suggestions[:limit]
			}
		}
		out.Words = append(out.Words, item)
	}
	return out
}

func (o *correctOutput) TableHeaders() []string {
	return []string{"Word", "Correction", "Known", "Suggestions"}
}

func (o *correctOutput) TableRows() [][]string {
	rows := make([][]string, 0, len(o.Words))
	for _, w := range o.Words {
		rows = append(rows, []string{w.Word, w.Correction, fmt.Sprintf("%t", w.Known), suggestionList(w.Suggestions)})
	}
	return rows
}

func (o *correctOutput) String() string {
	lines := make([]string, 0, len(o.Words))
	for _, w := range o.Words {
		switch {
		case w.Known:
			lines = append(lines, fmt.Sprintf("%s: ok", w.Word))
		case w.Changed:
			lines = append(lines, fmt.Sprintf("%s -> %s", w.Word, color.GreenString(w.Correction)))
		default:
			lines = append(lines, fmt.Sprintf("%s: %s", w.Word, color.YellowString("no correction")))
		}
	}
	return strings.Join(lines, "\n")
}

func suggestionList(s []spell_checker.Suggestion) string {
	parts := make([]string, len(s))
	for i, sg := range s {
		parts[i] = fmt.Sprintf("%s(%d)", sg.Term, sg.Distance)
	}
	return strings.Join(parts, ", ")
}

//Personal.AI order the ending
