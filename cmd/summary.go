package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/course-archiver/internal/archiver"
)

// printSummary writes the final counts and one line per failed page.
func printSummary(w io.Writer, result archiver.RunResult) {
	elapsed := result.Finished.Sub(result.Started).Round(100 * time.Millisecond)
	fmt.Fprintf(w, "Run %s: %d archived, %d failed (%s)\n",
		result.RunID, len(result.Successes), len(result.Failures), elapsed)
	for _, failure := range result.Failures {
		fmt.Fprintf(w, "  FAILED #%d %s: %v\n", failure.Page.Index+1, failure.Page.Locator, failure.Err)
	}
}

// parseRange turns "3-7", "5-", "-4" or "6" (1-based, inclusive) into a page
// filter. An empty string selects every page and returns a nil filter.
func parseRange(raw string) (func([]archiver.PageDescriptor) []archiver.PageDescriptor, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	first, last := 1, 0
	lo, hi, isRange := strings.Cut(raw, "-")
	var err error
	if lo = strings.TrimSpace(lo); lo != "" {
		if first, err = strconv.Atoi(lo); err != nil {
			return nil, fmt.Errorf("invalid range %q: %w", raw, err)
		}
	}
	switch {
	case !isRange:
		last = first
	case strings.TrimSpace(hi) != "":
		if last, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil {
			return nil, fmt.Errorf("invalid range %q: %w", raw, err)
		}
	}
	if first < 1 || (last != 0 && last < first) {
		return nil, fmt.Errorf("invalid range %q: pages are numbered from 1 and the end must not precede the start", raw)
	}

	return func(pages []archiver.PageDescriptor) []archiver.PageDescriptor {
		var out []archiver.PageDescriptor
		for _, page := range pages {
			n := page.Index + 1
			if n >= first && (last == 0 || n <= last) {
				out = append(out, page)
			}
		}
		return out
	}, nil
}
