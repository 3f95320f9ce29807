// Command lazyjit loads IR modules into a lazily compiling engine and runs
// them. Functions are compiled the first time they are called.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
