package main

import "github.com/crewcal/server/cmd/server/cmd"

func main() {
	cmd.Execute()
}
