// qtkit scan <files...>
package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/qobs-build/qtkit/internal/msg"
	"github.com/qobs-build/qtkit/internal/qt"
	"github.com/spf13/cobra"
)

func doScan(args []string) {
	var classifier qt.Classifier = qt.QObject
	if flagSyntax {
		classifier = qt.NewSyntaxClassifier(string(qt.QObject.Token))
	}

	n := 0
	for _, path := range args {
		content, err := os.ReadFile(path)
		if err != nil {
			msg.Error("%v", err)
			continue
		}
		if classifier.Classify(content) {
			fmt.Printf("%s %s\n", color.HiGreenString("moc"), path)
			n++
		} else {
			msg.Debug("no moc needed for %s", path)
		}
	}
	msg.Info("%d of %d files need moc", n, len(args))
}

var scanCmd = &cobra.Command{
	Use:   "scan <files...>",
	Short: "Print which files need moc",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		doScan(args)
	},
}

func init() {
	// qtkit scan subcommand
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().BoolVar(&flagSyntax, "syntax", false, "Parse files as C++ and ignore Q_OBJECT in comments and strings")
}
