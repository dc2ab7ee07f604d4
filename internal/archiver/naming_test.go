package archiver

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePath(t *testing.T) {
	t.Parallel()

	dir := filepath.Join("out", "course")
	tests := []struct {
		name   string
		page   PageDescriptor
		format Format
		want   string
	}{
		{
			name:   "document",
			page:   PageDescriptor{Index: 0, Title: "Welcome"},
			format: FormatDocument,
			want:   filepath.Join(dir, "1 - Welcome.pdf"),
		},
		{
			name:   "image",
			page:   PageDescriptor{Index: 41, Title: "Week 3 - Graphs"},
			format: FormatImage,
			want:   filepath.Join(dir, "42 - Week 3 - Graphs.png"),
		},
		{
			name:   "empty title",
			page:   PageDescriptor{Index: 2},
			format: FormatDocument,
			want:   filepath.Join(dir, "3 - untitled.pdf"),
		},
		{
			name:   "whitespace title",
			page:   PageDescriptor{Index: 3, Title: "   "},
			format: FormatImage,
			want:   filepath.Join(dir, "4 - untitled.png"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ResolvePath(dir, tt.page, tt.format)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, ResolvePath(dir, tt.page, tt.format), "must be deterministic")
		})
	}
}

func TestResolvePathIgnoresLocator(t *testing.T) {
	t.Parallel()

	a := PageDescriptor{Index: 5, Locator: "https://a", Title: "Same"}
	b := PageDescriptor{Index: 5, Locator: "https://b", Title: "Same"}
	assert.Equal(t, ResolvePath("out", a, FormatImage), ResolvePath("out", b, FormatImage))
}

func TestResolvePathSeparatesEqualTitles(t *testing.T) {
	t.Parallel()

	pages := []PageDescriptor{
		{Index: 0, Title: "Quiz"},
		{Index: 1, Title: "Quiz"},
		{Index: 2, Title: ""},
		{Index: 3, Title: ""},
	}
	seen := map[string]int{}
	for _, page := range pages {
		path := ResolvePath("out", page, FormatDocument)
		prev, dup := seen[path]
		require.False(t, dup, "pages %d and %d share %s", prev, page.Index, path)
		seen[path] = page.Index
	}
	assert.Equal(t, filepath.Join("out", "2 - Quiz.pdf"), ResolvePath("out", pages[1], FormatDocument))
}
