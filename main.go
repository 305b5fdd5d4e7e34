package main

import (
	"fmt"
	"os"

	"github.com/fenwick/warren/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		if !cmd.IsSilentExit(err) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
