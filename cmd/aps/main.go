package main

import (
	"os"

	"github.com/bianoble/aps/cmd/aps/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
