package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/sirupsen/logrus"
)

// CollyFetcher fetches static pages over plain HTTP.
type CollyFetcher struct {
	userAgent string
	timeout   time.Duration
	log       logrus.FieldLogger
}

// NewCollyFetcher creates a fetcher with the given request timeout.
func NewCollyFetcher(userAgent string, timeout time.Duration, logger logrus.FieldLogger) *CollyFetcher {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &CollyFetcher{
		userAgent: userAgent,
		timeout:   timeout,
		log:       logger.WithField("component", "colly_fetcher"),
	}
}

// Fetch returns the body of url. Non-2xx responses yield a *StatusError.
func (f *CollyFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c := colly.NewCollector(colly.UserAgent(f.userAgent), colly.AllowURLRevisit())
	if f.timeout > 0 {
		c.SetRequestTimeout(f.timeout)
	}

	var body string
	var fetchErr error
	c.OnResponse(func(r *colly.Response) {
		body = string(r.Body)
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			fetchErr = &StatusError{URL: url, Code: r.StatusCode}
			return
		}
		fetchErr = err
	})

	if err := c.Visit(url); err != nil && fetchErr == nil {
		fetchErr = err
	}
	if fetchErr != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", url, fetchErr)
	}
	f.log.WithField("url", url).Debug("Page fetched")
	return body, nil
}
