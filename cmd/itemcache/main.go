package main

import "github.com/driftfs/itemcache/cmd/itemcache/cmd"

func main() {
	cmd.Execute()
}
