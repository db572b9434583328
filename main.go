package main

import "github.com/edgellm/edgellm/cmd"

func main() {
	cmd.Execute()
}
