// The main package for the reportwatch executable.
package main

import "reportwatch/cmd"

func main() {
	cmd.Execute()
}
