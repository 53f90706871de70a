package main

import (
	"fmt"
	"net/http"
	"os"
)

func main() {
	app := newApp(http.DefaultClient)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
