// sentinel is the main CLI: train the cascade, evaluate it against the
// held-out partition, and serve the monitoring API.
//
// Usage:
//
//	sentinel train [--config=<path>]
//	sentinel evaluate [--config=<path>] [--force]
//	sentinel serve [--config=<path>]
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
