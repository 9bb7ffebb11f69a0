package main

import "github.com/jmcleod/opweb/cmd/opweb/cmd"

func main() {
	cmd.Execute()
}
