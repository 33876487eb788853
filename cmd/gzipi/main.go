package main

import (
	"os"

	"github.com/gzipi/gzipi/internal/gzerr"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		code := gzerr.ExitCode(err)
		if code != 0 {
			root.PrintErrln("gzipi:", err)
		}
		os.Exit(code)
	}
}
