package main

import "github.com/crystaldolphin/tidewire/cmd"

func main() {
	cmd.Execute()
}
