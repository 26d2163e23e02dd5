package main

import (
	"fmt"
	"os"

	"github.com/teranos/p8ls/cmd/p8ls/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
