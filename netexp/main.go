// Command netexp runs network experiments described by scenario files.
package main

import "github.com/sarchlab/netexp/netexp/cmd"

func main() {
	cmd.Execute()
}
