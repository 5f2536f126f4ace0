package util

import "strings"

// StatementSeparator is the shell statement separator refused in
// lifecycle hook commands.
const StatementSeparator = ";"

// HasStatementSeparator reports whether cmd could chain a second shell
// statement.
func HasStatementSeparator(cmd string) bool {
	return strings.Contains(cmd, StatementSeparator)
}
