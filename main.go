package main

import "fbgate/cmd"

func main() {
	cmd.Execute()
}
