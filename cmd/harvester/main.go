package main

import "github.com/minhngt/harvester/internal/cli"

func main() {
	cli.Execute()
}
