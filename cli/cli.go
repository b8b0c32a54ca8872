// Package cli turns a service controller into a complete command-line
// front end: one verb per lifecycle operation, plus run. A program built
// on it needs nothing beyond constructing its controller and calling
// Execute; the same binary then serves as installer, control client and
// the daemon itself.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"svckit"
)

// New builds the command tree for c. Invoking the binary with no verb
// runs the service in the current process, which is what host-managed
// starts and quick interactive checks both want.
func New(c *svckit.Controller) *cobra.Command {
	root := &cobra.Command{
		Use:           c.Name(),
		Short:         "Control the " + c.Name() + " service",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Run()
		},
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "install",
			Short: "Register the service with the host",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.Install()
			},
		},
		&cobra.Command{
			Use:   "uninstall",
			Short: "Stop the service if needed and remove its registration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.Uninstall()
			},
		},
		&cobra.Command{
			Use:   "start",
			Short: "Start the service in the background",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.Start()
			},
		},
		&cobra.Command{
			Use:   "stop",
			Short: "Stop the running service",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.Stop()
			},
		},
		&cobra.Command{
			Use:   "restart",
			Short: "Stop the service if running, then start it",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.Restart()
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Report whether the service is installed and running",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				st, err := c.Status()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is %s\n", c.Name(), st)
				return nil
			},
		},
		&cobra.Command{
			Use:   "run",
			Short: "Run the service in this process",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.Run()
			},
		},
	)
	return root
}

// Execute runs the command tree for c and exits non-zero on failure.
func Execute(c *svckit.Controller) {
	if err := New(c).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
