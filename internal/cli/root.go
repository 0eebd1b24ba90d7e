// Package cli holds the agent's command line: the long-running server plus
// offline commands that validate, render and inspect project files.
package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// errReported is returned after a command has already printed why it
// failed. Commands that return it set SilenceErrors.
var errReported = errors.New("command failed")

// NewRootCommand builds the command tree. Running it without a
// subcommand starts the agent server.
func NewRootCommand(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "voxreel-agent",
		Short: "Local video narration and export agent",
		Long: `voxreel-agent composes source clips, synthesized voice-over and
background music into a single exported video.

Run without a command to start the local API server, or use the
commands below to work with project files directly.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), version, serveOptions{})
		},
	}

	root.AddCommand(
		newServeCommand(version),
		newValidateCommand(),
		newRenderCommand(),
		newEDLCommand(),
		newDoctorCommand(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "voxreel-agent version %s\n", version)
			},
		},
	)
	return root
}

// Execute runs the command line and returns a non-nil error when the
// process should exit with a failure status.
func Execute(version string) error {
	return NewRootCommand(version).Execute()
}
