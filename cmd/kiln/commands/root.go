// Package commands implements the CLI commands for kiln.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/spf13/cobra"
	"go.trai.ch/kiln/internal/app"
	"go.trai.ch/kiln/internal/core/domain"
)

// CLI represents the command line interface for kiln.
type CLI struct {
	app     Application
	rootCmd *cobra.Command
}

// Application represents the application logic interface.
type Application interface {
	Resolve(ctx context.Context, opts app.ResolveOptions) (domain.BuildResult, error)
	Key(opts app.ResolveOptions) (domain.CacheKey, error)
	Clean(ctx context.Context) (domain.CacheStats, error)
}

// New creates a new CLI instance with the given app.
func New(a Application) *CLI {
	c := &CLI{app: a}

	var opts app.ResolveOptions
	rootCmd := &cobra.Command{
		Use:   "kiln --version <version> --os <runner-os> [--workaround [true|false]] [--tool make]",
		Short: "Restore a GNU tool from the build cache or build it from source",
		Long: `kiln installs <tool>-<version> into the install root. The binary is restored
from the local build cache when present, otherwise it is downloaded, configured,
built and cached. Windows runners are skipped.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := c.app.Resolve(cmd.Context(), opts)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), result.BinaryPath)
			return nil
		},
	}
	bindRequestFlags(rootCmd, &opts)

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return errors.Join(domain.ErrInvalidRequest, err)
	})

	rootCmd.InitDefaultHelpFlag()
	rootCmd.Flags().Lookup("help").Usage = "Show help for command"

	c.rootCmd = rootCmd

	rootCmd.AddCommand(c.newKeyCmd())
	rootCmd.AddCommand(c.newCleanCmd())
	rootCmd.AddCommand(c.newVersionCmd())

	return c
}

// bindRequestFlags registers the flags describing a build request.
func bindRequestFlags(cmd *cobra.Command, opts *app.ResolveOptions) {
	cmd.Flags().StringVar(&opts.Version, "version", "", "Tool version to install, e.g. 4.4.1")
	cmd.Flags().StringVar(&opts.OS, "os", "", "Runner operating system, e.g. ubuntu-latest")
	cmd.Flags().BoolVar(&opts.Workaround, "workaround", false, "Apply the tool's source workaround before building")
	cmd.Flags().StringVar(&opts.Tool, "tool", "make", "Tool to install")
}

// boolFlags lists the boolean flags that also accept their value as the next argument.
var boolFlags = []string{"--workaround"}

// joinBoolValues rewrites "--workaround true" as "--workaround=true". pflag
// never consumes a separate value for a boolean flag, but CI steps pass one.
func joinBoolValues(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return append(out, args[i:]...)
		}
		if slices.Contains(boolFlags, arg) && i+1 < len(args) {
			if _, err := strconv.ParseBool(args[i+1]); err == nil {
				out = append(out, arg+"="+args[i+1])
				i++
				continue
			}
		}
		out = append(out, arg)
	}
	return out
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(joinBoolValues(args))
}

// SetOutput sets the output and error streams for the root command. Used for testing.
func (c *CLI) SetOutput(out, err io.Writer) {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(err)
}
