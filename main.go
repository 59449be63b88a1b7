package main

import "github.com/qobs-build/qtkit/cmd"

func main() {
	cmd.Execute()
}
