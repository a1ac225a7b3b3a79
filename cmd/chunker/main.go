package main

import (
	"fmt"
	"os"

	"github.com/feichai0017/document-chunker/cmd/chunker/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
