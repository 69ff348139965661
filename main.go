package main

import "github.com/sandraschi/fastsearch-mcp/cmd"

func main() {
	cmd.Execute()
}
