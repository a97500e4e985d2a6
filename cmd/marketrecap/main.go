package main

import "market-recap/internal/cli"

func main() {
	cli.Execute()
}
