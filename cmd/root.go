// qtkit [path], qtkit build [path]
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/qobs-build/qtkit/internal/builder"
	"github.com/qobs-build/qtkit/internal/msg"
	"github.com/spf13/cobra"
)

var (
	flagProfile   string
	flagJobs      int
	flagSyntax    bool
	flagGenerator EnumValue = NewEnumValue(builder.GeneratorQobs, map[string]string{
		builder.GeneratorQobs:  "Use the built-in incremental builder (default)",
		builder.GeneratorNinja: "Generates a build.ninja file and runs ninja",
	})
)

// loadBuilder opens the package in the first argument, "." when there is none
func loadBuilder(args []string) *builder.Builder {
	target := "."
	if len(args) > 0 {
		target = args[0]
	}
	b, err := builder.NewBuilderInDirectory(target)
	if err != nil {
		msg.Fatal("%v", err)
	}
	b.Syntax = flagSyntax
	b.Jobs = flagJobs
	return b
}

func doBuild(cmd *cobra.Command, args []string) {
	b := loadBuilder(args)
	p, err := b.Build(cmd.Context(), flagProfile, flagGenerator.Value())
	if err != nil {
		msg.Fatal("%v", err)
	}
	msg.Debug("built %s with %s", p.Target.Output(), p.Qt)
}

var rootCmd = &cobra.Command{
	Use:   "qtkit [target path]",
	Short: "Qt 4 builds with moc, uic and rcc",
	Long: `qtkit builds C++ packages against Qt 4. It finds the Qt installation,
binds the Qt libraries and runs moc, uic and rcc where the sources need them.`,
	Args: cobra.MaximumNArgs(1),
	Run:  doBuild,
}

var buildCmd = &cobra.Command{
	Use:   "build [target path]",
	Short: "Build the package",
	Long:  `Build the package. If no target path is given, uses "."`,
	Args:  cobra.MaximumNArgs(1),
	Run:   doBuild,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&msg.Verbose, "verbose", "v", false, "Print debug output")
	addBuildFlags(rootCmd)

	// qtkit build subcommand
	rootCmd.AddCommand(buildCmd)
	addBuildFlags(buildCmd)
}

func addBuildFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&flagProfile, "profile", "p", "debug", "Build with the given profile")
	cmd.Flags().VarP(&flagGenerator, "gen", "g", "Generator to build with, one of "+flagGenerator.HelpString())
	cmd.Flags().IntVarP(&flagJobs, "jobs", "j", 0, "Number of parallel steps, defaults to the number of CPUs")
	cmd.Flags().BoolVar(&flagSyntax, "syntax", false, "Parse sources as C++ to decide which need moc")
	cmd.RegisterFlagCompletionFunc("gen", flagGenerator.CompletionFunc())
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
