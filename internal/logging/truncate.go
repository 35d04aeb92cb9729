package logging

import "strconv"

// MaxLogFieldLength bounds string fields attached to log lines. Provider
// responses (server payloads in particular) can be several KB and would
// otherwise dominate the log stream.
const MaxLogFieldLength = 256

// Truncate shortens s to MaxLogFieldLength characters, appending "..." when
// anything was cut off.
func Truncate(s string) string {
	return TruncateN(s, MaxLogFieldLength)
}

// TruncateN shortens s to at most n characters, appending "..." when
// anything was cut off.
func TruncateN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// TruncateSlice keeps the first maxItems entries and summarizes the rest.
func TruncateSlice(items []string, maxItems int) []string {
	if len(items) <= maxItems {
		return items
	}
	out := make([]string, 0, maxItems+1)
	out = append(out, items[:maxItems]...)
	out = append(out, "... and "+itoa(len(items)-maxItems)+" more")
	return out
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
