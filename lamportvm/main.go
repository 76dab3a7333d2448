// Command lamportvm runs simulated machines that keep Lamport logical clocks
// and analyzes the logs they leave.
package main

import "github.com/sarchlab/lamportvm/lamportvm/cmd"

func main() {
	cmd.Execute()
}
