package main

import (
	"context"
	"fmt"
	"os"

	"github.com/platinummonkey/noderegistry/pkg/cli"
)

// set via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := cli.Execute(context.Background(), version); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
