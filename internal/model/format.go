package model

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
)

// DefaultPreviewLimit is the number of characters kept in a response preview.
const DefaultPreviewLimit = 2000

// TruncatePreview cuts s to limit characters and appends a marker naming
// the full size. Strings within the limit are returned unchanged.
func TruncatePreview(s string, limit int) string {
	if limit <= 0 {
		limit = DefaultPreviewLimit
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	cut := 0
	for i := range s {
		if limit == 0 {
			cut = i
			break
		}
		limit--
	}
	return fmt.Sprintf("%s... (%d bytes total)", s[:cut], len(s))
}

// FormatSize renders a byte count for display, e.g. "1.2 kB".
func FormatSize(n int64) string {
	if n < 0 {
		return ""
	}
	return humanize.Bytes(uint64(n))
}

// FormatElapsed renders a duration in whole milliseconds, e.g. "123 ms".
func FormatElapsed(d time.Duration) string {
	return fmt.Sprintf("%d ms", d.Milliseconds())
}
