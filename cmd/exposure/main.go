package main

import (
	"fmt"
	"os"
)

func main() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(healthCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
