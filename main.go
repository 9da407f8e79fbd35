package main

import "github.com/fheroes2/webstage/cmd"

func main() {
	cmd.Execute()
}
