// Command dustrun runs, replays and inspects DIR programs.
package main

import (
	"context"
	"os"

	"github.com/roach88/dustrun/internal/cli"
)

func main() {
	os.Exit(cli.Main(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
