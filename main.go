package main

import "github.com/iksnae/session-sync/cmd"

func main() {
	cmd.Execute()
}
