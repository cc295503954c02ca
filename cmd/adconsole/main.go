// Package main is the entry point for the adconsole CLI.
package main

import (
	"os"

	"adconsole/cmd/adconsole/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
