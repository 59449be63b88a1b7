// qtkit index
package cmd

import (
	"fmt"

	"github.com/qobs-build/qtkit/internal/index"
	"github.com/qobs-build/qtkit/internal/msg"
	"github.com/spf13/cobra"
)

func loadIndex() *index.Index {
	idx, err := index.LoadDefault()
	if err != nil {
		msg.Fatal("failed to load index: %v", err)
	}
	return idx
}

func doIndexAdd(name, prefix string) {
	idx := loadIndex()

	if idx.Has(name) {
		msg.Warn("overwriting existing prefix for %s", name)
	}
	if err := idx.Set(name, prefix); err != nil {
		msg.Fatal("%v", err)
	}

	if err := idx.Save(); err != nil {
		msg.Fatal("failed to save index: %v", err)
	}
	msg.Info("added prefix @%s -> %s", name, idx.Prefixes[name])
}

func doIndexRemove(name string) {
	idx := loadIndex()

	if !idx.Remove(name) {
		msg.Warn("prefix %s not found", name)
		return
	}
	msg.Info("removed prefix %s", name)

	if err := idx.Save(); err != nil {
		msg.Fatal("failed to save index: %v", err)
	}
}

func doIndexSearch(term string) {
	idx := loadIndex()

	names := idx.Search(term)
	for i, name := range names {
		fmt.Printf("%d. @%s -> %s\n", i+1, name, idx.Prefixes[name])
	}

	if len(names) == 0 {
		msg.Warn("no matches found for %q in %s", term, idx.Path())
	} else {
		msg.Info("found %d matches for %q", len(names), term)
	}
}

var indexAddCmd = &cobra.Command{
	Use:   "add <name> <prefix>",
	Short: "Register a Qt prefix, usable as prefix = \"@name\"",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		doIndexAdd(args[0], args[1])
	},
}

var indexRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a Qt prefix from the index",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		doIndexRemove(args[0])
	},
}

var indexSearchCmd = &cobra.Command{
	Use:   "search [term]",
	Short: "List the registered Qt prefixes, optionally filtered",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		term := ""
		if len(args) > 0 {
			term = args[0]
		}
		doIndexSearch(term)
	},
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the index of known Qt prefixes",
}

func init() {
	// qtkit index subcommand
	indexCmd.AddCommand(indexAddCmd)
	indexCmd.AddCommand(indexRemoveCmd)
	indexCmd.AddCommand(indexSearchCmd)
	rootCmd.AddCommand(indexCmd)
}
