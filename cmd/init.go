// qtkit init [name], qtkit new [path]
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/qobs-build/qtkit/internal/builder"
	"github.com/qobs-build/qtkit/internal/msg"
	"github.com/spf13/cobra"
)

func writefile(content string, elem ...string) {
	path := filepath.Join(elem...)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err = os.WriteFile(path, []byte(content), 0o644); err != nil {
			msg.Fatal("create file %s: %v", path, err)
		}
		fmt.Printf("%s file: %s\n", color.HiGreenString("Created"), filepath.ToSlash(path))
	}
}

func mkdir(elem ...string) {
	path := filepath.Join(elem...)
	if err := os.MkdirAll(path, 0o755); err != nil {
		msg.Fatal("mkdir %s: %v", path, err)
	}
}

func getProgramName() string {
	if len(os.Args) == 0 {
		return "qtkit"
	}
	basename := filepath.Base(os.Args[0])
	return strings.TrimSuffix(basename, filepath.Ext(basename))
}

// initIn initializes a package in an existing specified directory
func initIn(dir, name string, lib bool) {
	target := `sources = ["src/**/*.cc"]
headers = ["src/**/*.hh"]
forms = ["src/**/*.ui"]`
	if lib {
		target = "lib = true\n" + target
	}

	writefile(`[package]
name = "`+name+`"
description = "A Qt 4 application."

[qt]
version = ">= 4.6, < 5"
libraries = ["core", "gui"]

[qt.'target_os == "windows"']
prefer-shared = true

[target]
`+target+`
`, dir, builder.ConfigFilename)

	mkdir(dir, "src")

	// src/window.hh
	writefile(`#ifndef WINDOW_HH
#define WINDOW_HH

#include <QtGui/QWidget>

class QLabel;

class Window : public QWidget {
    Q_OBJECT

public:
    explicit Window(QWidget *parent = 0);

public slots:
    void greet();

private:
    QLabel *label;
};

#endif
`, dir, "src", "window.hh")

	// src/window.cc
	writefile(`#include "window.hh"

#include <QtGui/QLabel>
#include <QtGui/QVBoxLayout>

Window::Window(QWidget *parent) : QWidget(parent), label(new QLabel(this)) {
    QVBoxLayout *layout = new QVBoxLayout(this);
    layout->addWidget(label);
    greet();
}

void Window::greet() {
    label->setText(tr("Hello, World!"));
}
`, dir, "src", "window.cc")

	if !lib {
		// src/main.cc
		writefile(`#include <QtGui/QApplication>

#include "window.hh"

int main(int argc, char **argv) {
    QApplication app(argc, argv);
    Window window;
    window.show();
    return app.exec();
}
`, dir, "src", "main.cc")
	}

	// .gitignore
	writefile(`build/
`, dir, ".gitignore")

	programName := getProgramName()
	fmt.Printf("You can now do %s to build, or %s to build and run.\n", color.HiCyanString(programName+" "+dir), color.HiCyanString(programName+" run "+dir))
}

var library bool

var initCmd = &cobra.Command{
	Use:   "init [name]",
	Short: "Create a new Qt package in the current directory",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		initIn(".", args[0], library)
	},
}

var newCmd = &cobra.Command{
	Use:   "new [path]",
	Short: "Create a new Qt package in a new directory",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		mkdir(args[0])
		initIn(args[0], filepath.Base(args[0]), library)
	},
}

func init() {
	// qtkit init subcommand
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVarP(&library, "lib", "l", false, "Create a library target")

	// qtkit new subcommand
	rootCmd.AddCommand(newCmd)
	newCmd.Flags().BoolVarP(&library, "lib", "l", false, "Create a library target")
}
