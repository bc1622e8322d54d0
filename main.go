package main

import "github.com/RolandSherwin/rekal/cmd"

func main() {
	cmd.Execute()
}
