package main

import "musichud/cmd"

func main() {
	cmd.Execute()
}
