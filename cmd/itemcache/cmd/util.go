package cmd

import "strings"

// wrapHelp wraps text at a fixed column width, matching the teacher's
// cmd/util.WrapString (used for every flag's help text).
func wrapHelp(text string) string {
	const width = 60
	var lines []string
	var line strings.Builder
	n := 0

	for _, word := range strings.Fields(text) {
		if n > 0 && n+1+len(word) > width {
			lines = append(lines, line.String())
			line.Reset()
			n = 0
		}
		if n > 0 {
			line.WriteString(" ")
			n++
		}
		line.WriteString(word)
		n += len(word)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}
