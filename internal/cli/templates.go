package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nimbl/backend/internal/templates"
)

func (c *CLI) templatesCommand() *cobra.Command {
	var customDir string

	cmd := &cobra.Command{
		Use:   "templates",
		Short: "List the form templates new forms can start from",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("dir") && c.configPath != "" {
				cfg, _, err := c.loadConfig()
				if err != nil {
					return err
				}
				customDir = cfg.Storage.TemplatesDirectory
			}

			reg, err := templates.Load(customDir)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tFIELDS\tTITLE")
			for _, t := range reg.List() {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", t.Name, t.FieldCount, t.Title)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&customDir, "dir", "", "directory of custom *.yaml templates")
	return cmd
}
