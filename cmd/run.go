// qtkit run [path]
package cmd

import (
	"github.com/qobs-build/qtkit/internal/msg"
	"github.com/spf13/cobra"
)

func doRun(cmd *cobra.Command, args []string) {
	b := loadBuilder(args)
	if len(args) > 0 {
		args = args[1:] // other arguments will be passed to program
	}
	if err := b.BuildAndRun(cmd.Context(), args, flagProfile, flagGenerator.Value()); err != nil {
		msg.Fatal("%v", err)
	}
}

var runCmd = &cobra.Command{
	Use:   "run [target path] [args...]",
	Short: "Build and run the package",
	Long:  `Build and run the package. If no target path is given, uses "."`,
	Args:  cobra.ArbitraryArgs,
	Run:   doRun,
}

func init() {
	// qtkit run subcommand
	rootCmd.AddCommand(runCmd)
	addBuildFlags(runCmd)
}
