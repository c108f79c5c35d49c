package mcp

import "strings"

const toolSeparator = "__"

// QualifiedName is the name a server's tool is registered under:
// <server>__<tool>.
func QualifiedName(server, tool string) string {
	return server + toolSeparator + tool
}

// SplitQualifiedName reverses QualifiedName.
func SplitQualifiedName(name string) (server, tool string, ok bool) {
	return strings.Cut(name, toolSeparator)
}
