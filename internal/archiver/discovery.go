package archiver

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Discover enumerates the course's pages in document order. The whole
// enumeration is one retried operation; exhausting policy yields an error
// matching both ErrDiscovery and ErrExhaustedRetries.
func Discover(
	ctx context.Context,
	browser Browser,
	courseURL string,
	selectors Selectors,
	policy RetryPolicy,
	logger *zap.Logger,
) ([]PageDescriptor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Retry(ctx, policy, func(ctx context.Context) ([]PageDescriptor, error) {
		pages, err := discoverOnce(ctx, browser, courseURL, selectors)
		if err != nil {
			return nil, stageError(ErrDiscovery, courseURL, err)
		}
		logger.Debug("course outline discovered", zap.String("course", courseURL), zap.Int("pages", len(pages)))
		return pages, nil
	})
}

func discoverOnce(ctx context.Context, browser Browser, courseURL string, selectors Selectors) (pages []PageDescriptor, err error) {
	scope, err := browser.NewScope(ctx)
	if err != nil {
		return nil, fmt.Errorf("open scope: %w", err)
	}
	defer func() {
		if cerr := scope.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close scope: %w", cerr)
		}
	}()

	if err := scope.Navigate(ctx, courseURL); err != nil {
		return nil, fmt.Errorf("open course outline: %w", err)
	}
	html, err := scope.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("read course outline: %w", err)
	}
	links, err := ExtractLinks(html, courseURL, selectors.Link)
	if err != nil {
		return nil, err
	}

	pages = make([]PageDescriptor, 0, len(links))
	for i, link := range links {
		pages = append(pages, PageDescriptor{Index: i, Locator: link})
	}
	return pages, nil
}
