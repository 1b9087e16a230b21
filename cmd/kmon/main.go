package main

import (
	"os"

	"github.com/utotu/MIT-6.828/cmd/kmon/cmds"
)

func main() {
	if err := cmds.New().Execute(); err != nil {
		os.Exit(1)
	}
}
