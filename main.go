package main

import "binspect/cmd"

func main() {
	cmd.Execute()
}
