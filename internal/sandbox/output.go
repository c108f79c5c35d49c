package sandbox

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// TruncationNotice is appended to output cut at the policy limit.
const TruncationNotice = "\n... [output truncated for security]"

func formatOutput(exitCode int, stdout, stderr string) string {
	if exitCode != 0 {
		return fmt.Sprintf("Command failed with return code %d\nSTDOUT: %s\nSTDERR: %s", exitCode, stdout, stderr)
	}
	if strings.TrimSpace(stderr) == "" {
		return stdout
	}
	if stdout != "" && !strings.HasSuffix(stdout, "\n") {
		stdout += "\n"
	}
	return stdout + "STDERR: " + stderr
}

// truncateOutput cuts s to at most limit bytes without splitting a UTF-8
// sequence and appends TruncationNotice. It reports whether s was cut.
func truncateOutput(s string, limit int) (string, bool) {
	if len(s) <= limit {
		return s, false
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + TruncationNotice, true
}
