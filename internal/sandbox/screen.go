package sandbox

import (
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// injectionTokens is ordered so two-character operators are reported before
// their one-character prefixes.
var injectionTokens = []string{"&&", "||", ">>", "<<", "$(", ";", "|", ">", "<", "&", "`"}

// screenSubstring returns the first shell operator found anywhere in raw.
// Quoting is ignored.
func screenSubstring(raw string) (string, bool) {
	for _, tok := range injectionTokens {
		if strings.Contains(raw, tok) {
			return tok, true
		}
	}
	return "", false
}

// screenStructural parses raw as a shell command line and returns a
// description of the first construct a plain argv exec could not honor.
// Operator characters inside quotes are data and pass.
func screenStructural(raw string) (string, bool, error) {
	file, err := syntax.NewParser().Parse(strings.NewReader(raw), "")
	if err != nil {
		return "", false, err
	}

	if len(file.Stmts) > 1 {
		return ";", true, nil
	}
	if len(file.Stmts) == 0 {
		return "", false, nil
	}

	stmt := file.Stmts[0]
	switch {
	case stmt.Background:
		return "&", true, nil
	case stmt.Coprocess:
		return "coproc", true, nil
	case stmt.Negated:
		return "!", true, nil
	case len(stmt.Redirs) > 0:
		return stmt.Redirs[0].Op.String(), true, nil
	}

	switch cmd := stmt.Cmd.(type) {
	case *syntax.CallExpr:
		if len(cmd.Assigns) > 0 {
			return "=", true, nil
		}
	case *syntax.BinaryCmd:
		return cmd.Op.String(), true, nil
	case nil:
		return "", false, nil
	default:
		return "compound command", true, nil
	}

	var found string
	syntax.Walk(stmt, func(node syntax.Node) bool {
		if found != "" {
			return false
		}
		switch n := node.(type) {
		case *syntax.CmdSubst:
			if n.Backquotes {
				found = "`"
			} else {
				found = "$("
			}
		case *syntax.ProcSubst:
			found = n.Op.String()
		case *syntax.ArithmExp:
			found = "$(("
		case *syntax.ParamExp:
			found = "$"
		case *syntax.ExtGlob:
			found = n.Op.String()
		}
		return found == ""
	})
	return found, found != "", nil
}
