package main

import "github.com/Dicklesworthstone/botmaster/internal/cli"

func main() {
	cli.Execute()
}
