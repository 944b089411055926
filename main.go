package main

import "github.com/kebairia/neoback/cmd"

func main() {
	cmd.Execute()
}
