package main

import "github.com/timvw/reverse-turing/cmd"

func main() {
	cmd.Execute()
}
