package main

import (
	"context"
	"fmt"
	"os"

	"github.com/farbodahm/sqldash/logging"
)

func main() {
	err := newRootCmd().ExecuteContext(context.Background())
	logging.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
