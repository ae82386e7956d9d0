package main

import (
	"pm25watcher/internal/cli"
)

func main() {
	cli.Execute()
}
