package main

import "github.com/davarch/devboard/cmd/devboard/cli"

func main() {
	cli.Execute()
}
