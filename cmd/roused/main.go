package main

import "rouse/cmd/roused/cmd"

func main() {
	cmd.Execute()
}
