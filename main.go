package main

import "github.com/nasa-gibs/oetime/cmd"

func main() {
	cmd.Execute()
}
