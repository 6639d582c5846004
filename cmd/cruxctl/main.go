// Command cruxctl drives the demo app of the command/effect core from the
// shell side and inspects its recorded request log.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/cruxgo/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(int(cli.ExitCodeOf(err)))
	}
}
