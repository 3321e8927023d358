package main

import "github.com/nosark/polygon-io-playground/internal/cli"

func main() {
	cli.Execute()
}
