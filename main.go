package main

import "github.com/sergev/dumpfloppy/cmd"

func main() {
	cmd.Execute()
}
