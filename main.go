package main

import "seat-reservation/cmd"

func main() {
	cmd.Execute()
}
