// apesctl deploys the wAvaxApes contracts to Avalanche C-Chain targets and
// verifies their source on the targets' explorers.
package main

import (
	"os"

	"github.com/apesavax/wAvaxApes/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
