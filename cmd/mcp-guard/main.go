// Command mcp-guard runs the mcp-guard security gateway and its
// supporting CLI (init, validate, keygen, hash-key, check-upstream, run).
package main

import "github.com/mcpguard/mcp-guard/cmd/mcp-guard/cmd"

func main() {
	cmd.Execute()
}
