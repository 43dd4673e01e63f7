package main

import "github.com/dmelnik/lumen/cmd"

func main() {
	cmd.Execute()
}
