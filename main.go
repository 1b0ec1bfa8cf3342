package main

import "github.com/fakeyudi/sandbox/cmd"

func main() {
	cmd.Execute()
}
