// Command cohsim simulates snooping cache coherence protocols.
package main

import "github.com/sarchlab/cohsim/cohsim/cmd"

func main() {
	cmd.Execute()
}
