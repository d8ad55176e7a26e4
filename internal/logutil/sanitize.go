package logutil

import "strings"

// maxFieldLen bounds how much of a client supplied value ends up in a log line.
const maxFieldLen = 200

// SanitizeForLog flattens client supplied strings (event names, usernames,
// remote addresses) before they are logged so a crafted value cannot forge
// extra log lines. Control characters are dropped and long values are cut.
func SanitizeForLog(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	n := 0
	for _, r := range s {
		if n == maxFieldLen {
			b.WriteString("...")
			break
		}
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteByte(' ')
		case r < 32 || r == 0x7f:
			continue
		default:
			b.WriteRune(r)
		}
		n++
	}
	return b.String()
}
