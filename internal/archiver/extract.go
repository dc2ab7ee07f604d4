package archiver

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

const maxTitleRunes = 120

var (
	unsafeChars  = regexp.MustCompile(`[<>:"|?*]`)
	pathSeps     = regexp.MustCompile(`[/\\]+`)
	runsOfSpaces = regexp.MustCompile(`\s+`)
)

func parseDocument(html string) (*goquery.Document, error) {
	if strings.TrimSpace(html) == "" {
		return nil, fmt.Errorf("empty document")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

// ExtractLinks returns the href of every element matching selector, in
// document order, resolved against base. Elements without an href are
// skipped.
func ExtractLinks(html, base, selector string) ([]string, error) {
	doc, err := parseDocument(html)
	if err != nil {
		return nil, err
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	links := []string{}
	var resolveErr error
	doc.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, ok := sel.Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" {
			return true
		}
		ref, err := url.Parse(href)
		if err != nil {
			resolveErr = fmt.Errorf("parse link %q: %w", href, err)
			return false
		}
		links = append(links, baseURL.ResolveReference(ref).String())
		return true
	})
	if resolveErr != nil {
		return nil, resolveErr
	}
	return links, nil
}

// ExtractTitle returns the raw text of the first element matching selector.
// A missing element yields an empty title, not an error.
func ExtractTitle(html, selector string) (string, error) {
	doc, err := parseDocument(html)
	if err != nil {
		return "", err
	}
	return doc.Find(selector).First().Text(), nil
}

// NormalizeTitle turns breadcrumb text into something usable as a file name:
// line breaks and runs of whitespace collapse to one space, characters that
// are unsafe in file names are dropped, path separators become dashes and a
// leading course-name prefix is removed.
func NormalizeTitle(raw, prefix string) string {
	title := unsafeChars.ReplaceAllString(raw, "")
	title = pathSeps.ReplaceAllString(title, "-")
	title = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r):
			return ' '
		case unicode.IsControl(r), !unicode.IsPrint(r):
			return -1
		default:
			return r
		}
	}, title)
	title = strings.TrimSpace(runsOfSpaces.ReplaceAllString(title, " "))
	if prefix = strings.TrimSpace(prefix); prefix != "" {
		if rest, ok := strings.CutPrefix(title, prefix+" "); ok {
			title = strings.TrimSpace(rest)
		}
	}
	if runes := []rune(title); len(runes) > maxTitleRunes {
		title = strings.TrimSpace(string(runes[:maxTitleRunes]))
	}
	return strings.Trim(title, ". ")
}
