package main

import (
	"os"

	"github.com/mattsolo1/grove-script/cmd"
)

func main() {
	if err := cmd.GetRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
