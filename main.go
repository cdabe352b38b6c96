package main

import (
	"github.com/luma/nrepl/cmd"
)

func main() {
	cmd.Execute()
}
