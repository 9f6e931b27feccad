// kin - Character social-network extraction from novels.
//
// kin reads a novel, resolves pronouns, matches kinship and social
// relations between characters, resolves every mention against a roster
// and aggregates the results into a weighted character graph.
package main

import (
	"fmt"
	"os"

	"github.com/Benny93/kin-go/cmd"
)

func main() {
	cli := cmd.NewCLI()

	if err := cli.Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
