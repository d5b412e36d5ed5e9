package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/chargesync/internal/app"
)

func main() {
	if err := app.Run(os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "chargesync: %v\n", err)
		os.Exit(1)
	}
}
