package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.trai.ch/kiln/internal/app"
)

func (c *CLI) newKeyCmd() *cobra.Command {
	var opts app.ResolveOptions
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Print the cache key for a build request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := c.app.Key(opts)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
	bindRequestFlags(cmd, &opts)

	return cmd
}
