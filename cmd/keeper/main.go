package main

import (
	"os"

	"DCAKeeper/cmd/keeper/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
