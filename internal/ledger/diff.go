package ledger

import (
	"fmt"
	"strings"
)

const diffContextLines = 3

// unifiedDiff renders a single-hunk unified diff between two document texts.
// It trims the common prefix and suffix line-wise; the staged-edit previews
// this feeds are small and local, so one hunk is enough.
func unifiedDiff(documentID, oldText, newText string) string {
	if oldText == newText {
		return ""
	}

	oldLines := strings.Split(oldText, "\n")
	newLines := strings.Split(newText, "\n")

	// Common prefix.
	start := 0
	for start < len(oldLines) && start < len(newLines) && oldLines[start] == newLines[start] {
		start++
	}

	// Common suffix, not crossing the prefix.
	oldEnd, newEnd := len(oldLines), len(newLines)
	for oldEnd > start && newEnd > start && oldLines[oldEnd-1] == newLines[newEnd-1] {
		oldEnd--
		newEnd--
	}

	ctxStart := start - diffContextLines
	if ctxStart < 0 {
		ctxStart = 0
	}
	ctxEnd := oldEnd + diffContextLines
	if ctxEnd > len(oldLines) {
		ctxEnd = len(oldLines)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "--- a/%s\n+++ b/%s\n", documentID, documentID)
	fmt.Fprintf(&b, "@@ -%d,%d +%d,%d @@\n",
		ctxStart+1, ctxEnd-ctxStart,
		ctxStart+1, (ctxEnd-ctxStart)-(oldEnd-start)+(newEnd-start))

	for i := ctxStart; i < start; i++ {
		fmt.Fprintf(&b, " %s\n", oldLines[i])
	}
	for i := start; i < oldEnd; i++ {
		fmt.Fprintf(&b, "-%s\n", oldLines[i])
	}
	for i := start; i < newEnd; i++ {
		fmt.Fprintf(&b, "+%s\n", newLines[i])
	}
	for i := oldEnd; i < ctxEnd; i++ {
		fmt.Fprintf(&b, " %s\n", oldLines[i])
	}
	return b.String()
}
