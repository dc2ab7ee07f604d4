package archiver

import (
	"fmt"
	"path/filepath"
	"strings"
)

const untitled = "untitled"

// ResolvePath derives the artifact path for a page. It is a pure function of
// the page index, title and format: "{index+1} - {title}.{ext}". Discovery
// indices are unique, so pages with equal titles never share a path.
func ResolvePath(outputDir string, page PageDescriptor, format Format) string {
	title := strings.TrimSpace(page.Title)
	if title == "" {
		title = untitled
	}
	name := fmt.Sprintf("%d - %s.%s", page.Index+1, title, format.Extension())
	return filepath.Join(outputDir, name)
}
