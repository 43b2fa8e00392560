// The main package for the movie-ingest executable.
package main

import (
	"github.com/JakeFAU/movie-ingest/cmd"
)

func main() {
	cmd.Execute()
}
