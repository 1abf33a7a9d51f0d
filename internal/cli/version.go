package cli

import (
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter()
			if f.JSONMode() {
				return f.JSON(map[string]string{
					"version": Version,
					"commit":  Commit,
					"date":    Date,
				})
			}
			f.Textln("botmaster %s (commit %s, built %s)", Version, Commit, Date)
			return nil
		},
	}
	return cmd
}
