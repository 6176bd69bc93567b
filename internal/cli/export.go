package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nimbl/backend/internal/service"
)

func (c *CLI) exportCommand() *cobra.Command {
	var formID, format, out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a form's responses as CSV or JSON",
		Long:  `Writes every response of a form, oldest first. The server must not be running: the response database allows a single process.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := c.loadConfig()
			if err != nil {
				return err
			}
			a, err := openApp(cfg, c.Logger)
			if err != nil {
				return err
			}
			defer a.Close()

			var w io.Writer = c.out
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				w = f
				if err := a.answers.Export(cmd.Context(), formID, format, w); err != nil {
					f.Close()
					os.Remove(out)
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				c.Logger.Info("responses exported", "form", formID, "format", format, "file", out)
				return nil
			}
			return a.answers.Export(cmd.Context(), formID, format, w)
		},
	}

	cmd.Flags().StringVar(&formID, "form", "", "form id (required)")
	cmd.Flags().StringVar(&format, "format", service.FormatCSV, "output format: csv or json")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default: stdout)")
	_ = cmd.MarkFlagRequired("form")
	return cmd
}
