// qtkit probe [path], qtkit libs [path] [names...]
package cmd

import (
	"os"
	"path/filepath"

	"github.com/qobs-build/qtkit/internal/builder"
	"github.com/qobs-build/qtkit/internal/msg"
	"github.com/qobs-build/qtkit/internal/qt"
	"github.com/qobs-build/qtkit/internal/toolchain"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type probeReport struct {
	Toolkit   *toolchain.Toolkit `yaml:"toolkit"`
	Qt        *qt.Installation   `yaml:"qt"`
	Libraries []*qt.Binding      `yaml:"libraries,omitempty"`
}

func printYAML(v any) {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		msg.Fatal("%v", err)
	}
	if err := enc.Close(); err != nil {
		msg.Fatal("%v", err)
	}
}

// resolve detects the toolkit and finds the Qt of the package
func resolve(cmd *cobra.Command, b *builder.Builder) (*toolchain.Toolkit, *qt.Installation) {
	tk, err := b.Toolkit()
	if err != nil {
		msg.Fatal("%v", err)
	}
	inst, err := b.Installation(cmd.Context(), tk)
	if err != nil {
		msg.Fatal("%v", err)
	}
	return tk, inst
}

func bindings(inst *qt.Installation, names []string, static bool) []*qt.Binding {
	libs := qt.NewLibraries(inst)
	var res []*qt.Binding
	for _, name := range names {
		b, err := libs.Binding(name, static)
		if err != nil {
			msg.Error("%v", err)
			continue
		}
		res = append(res, b)
	}
	return res
}

func staticMode(inst *qt.Installation, cfg *builder.Config) bool {
	if flagStatic {
		return true
	}
	if cfg.Qt.Static != nil {
		return *cfg.Qt.Static
	}
	return !inst.PreferShared
}

var flagStatic bool

var probeCmd = &cobra.Command{
	Use:   "probe [target path]",
	Short: "Print the toolkit, the Qt installation and the library bindings as YAML",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		b := loadBuilder(args)
		tk, inst := resolve(cmd, b)
		printYAML(probeReport{
			Toolkit:   tk,
			Qt:        inst,
			Libraries: bindings(inst, b.Config().Qt.Libraries, staticMode(inst, b.Config())),
		})
	},
}

// isPackage reports whether dir holds a package config
func isPackage(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, builder.ConfigFilename))
	return err == nil
}

var libsCmd = &cobra.Command{
	Use:   "libs [target path] [names...]",
	Short: "Resolve Qt libraries, all known ones when no name is given",
	Args:  cobra.ArbitraryArgs,
	Run: func(cmd *cobra.Command, args []string) {
		var pkgArgs []string
		if len(args) > 0 && isPackage(args[0]) {
			pkgArgs, args = args[:1], args[1:]
		}
		b := loadBuilder(pkgArgs)
		_, inst := resolve(cmd, b)

		names := args
		if len(names) == 0 {
			names = qt.NewLibraries(inst).Names()
		}
		printYAML(bindings(inst, names, staticMode(inst, b.Config())))
	},
}

func init() {
	// qtkit probe subcommand
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().BoolVarP(&flagStatic, "static", "s", false, "Resolve static libraries")

	// qtkit libs subcommand
	rootCmd.AddCommand(libsCmd)
	libsCmd.Flags().BoolVarP(&flagStatic, "static", "s", false, "Resolve static libraries")
}
