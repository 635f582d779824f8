package main

import "github.com/dganger475/dopp-sub002/cmd"

func main() {
	cmd.Execute()
}
