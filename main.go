// The main package for the lawcrawler executable.
package main

import (
	"github.com/JakeFAU/law-notes-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
