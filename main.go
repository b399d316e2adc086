// The main package for the oscar-crawler executable.
package main

import (
	"github.com/lmvianna/oscar-crawler/cmd"
)

func main() {
	cmd.Execute()
}
