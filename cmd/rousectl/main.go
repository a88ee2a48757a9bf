package main

import "rouse/cmd/rousectl/cmd"

func main() {
	cmd.Execute()
}
