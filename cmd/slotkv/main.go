package main

import "github.com/ssargent/slotkv/cmd/slotkv/cmd"

func main() {
	cmd.Execute()
}
