package cmds

import (
	"os"

	"github.com/go-go-golems/vizthinker/pkg/export"
	"github.com/go-go-golems/vizthinker/pkg/tree"
	"github.com/spf13/cobra"
)

func NewExportCommand() *cobra.Command {
	var (
		format string
		output string
		style  string
		wrap   int
	)
	cmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Render a session tree as markdown, html, json, yaml or term",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, err := tree.ParseSessionID(args[0])
			if err != nil {
				return err
			}
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer a.close()

			w := cmd.OutOrStdout()
			if output != "" && output != "-" {
				file, err := os.Create(output)
				if err != nil {
					return err
				}
				defer file.Close()
				w = file
			}
			return a.svc.Export(cmd.Context(), sessionID, f, w, export.Options{TermStyle: style, WordWrap: wrap})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "term", "Output format (markdown, html, json, yaml, term)")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "Output file")
	cmd.Flags().StringVar(&style, "style", "auto", "Glamour style for term output")
	cmd.Flags().IntVar(&wrap, "wrap", 100, "Word wrap width for term output")
	return cmd
}
