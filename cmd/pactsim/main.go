// Command pactsim runs the secret-alliance simulation over a generated world.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "pactsim:", err)
		os.Exit(1)
	}
}
