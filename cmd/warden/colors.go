package main

import (
	"fmt"
	"io"
	"strings"

	"charm.land/lipgloss/v2"
	"github.com/spf13/cobra"

	"github.com/hylla/warden/internal/domain"
)

// sampleLabels is rendered when colors gets no arguments.
var sampleLabels = []string{"To Do", "In Progress", "Done", "Archived", "Triage"}

func newColorsCommand(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "colors [label[=#hex]...]",
		Short: "Show the color each status label resolves to",
		RunE: func(_ *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = sampleLabels
			}
			var b strings.Builder
			for _, arg := range args {
				label, explicit, _ := strings.Cut(arg, "=")
				hex, err := domain.ResolveColor(explicit, label)
				if err != nil {
					return err
				}
				source := "backfilled"
				if strings.TrimSpace(explicit) != "" {
					source = "explicit"
				}
				fmt.Fprintf(&b, "%s %-8s %-11s %s\n", renderSwatch(hex, "    "), hex, source, strings.TrimSpace(label))
			}
			_, err := lipgloss.Fprint(stdout, b.String())
			return err
		},
	}
}

// renderSwatch paints text on a #RRGGBB background.
func renderSwatch(hex, text string) string {
	return lipgloss.NewStyle().Background(lipgloss.Color(hex)).Render(text)
}

func flagSummary(flags domain.StatusFlags) string {
	var parts []string
	if flags.ShowStrikeThrough {
		parts = append(parts, "strike")
	}
	if flags.Hidden {
		parts = append(parts, "hidden")
	}
	if flags.RequiresComment {
		parts = append(parts, "comment!")
	} else if flags.AllowsComment {
		parts = append(parts, "comment")
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ",")
}
