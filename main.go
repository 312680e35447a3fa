// Command council runs the Socratic Council CLI.
package main

import "github.com/socratic-council/council/cmd"

func main() {
	cmd.Execute()
}
