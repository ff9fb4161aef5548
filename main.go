// Package main is the entry point for the netmon network instrumentation tool.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/netmon/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
