// Command dispatchd runs the job engine and administers jobs, cron
// definitions, and execution history from the command line.
package main

import (
	"context"
	"os"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
