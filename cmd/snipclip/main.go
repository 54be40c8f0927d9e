package main

import "github.com/bryanchriswhite/SnipClip/cmd/snipclip/commands"

func main() {
	commands.Execute()
}
