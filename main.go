// The main package for the scrapebench executable.
package main

import (
	"github.com/JakeFAU/scrapebench/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
