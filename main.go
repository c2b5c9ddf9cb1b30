package main

import "farecraft/cli"

func main() {
	cli.Execute()
}
