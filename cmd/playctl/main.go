// Command playctl runs playground programs from the terminal with the same
// engine the server uses.
//
//	playctl run hello.js
//	echo 'console.log(1)' | playctl run --lang javascript
//	playctl languages
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errProgramFailed) {
			fmt.Fprintln(os.Stderr, err)
		}
		stop()
		os.Exit(1)
	}
}
