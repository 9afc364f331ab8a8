package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"
)

// RodFetcher renders pages in a headless browser, for wishlists that need JavaScript.
type RodFetcher struct {
	userAgent   string
	pageTimeout time.Duration
	log         logrus.FieldLogger
}

// NewRodFetcher creates a fetcher that launches a browser per fetch.
func NewRodFetcher(userAgent string, pageTimeout time.Duration, logger logrus.FieldLogger) *RodFetcher {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if pageTimeout <= 0 {
		pageTimeout = 30 * time.Second
	}
	return &RodFetcher{
		userAgent:   userAgent,
		pageTimeout: pageTimeout,
		log:         logger.WithField("component", "rod_fetcher"),
	}
}

// Fetch loads url and returns the rendered HTML.
func (f *RodFetcher) Fetch(ctx context.Context, url string) (html string, err error) {
	log := f.log.WithField("url", url)

	path, exists := launcher.LookPath()
	if !exists {
		log.Error("Cannot find browser executable for rod")
		return "", errors.New("rod browser dependency not found")
	}
	controlURL, err := launcher.New().Bin(path).Launch()
	if err != nil {
		return "", fmt.Errorf("failed to launch browser: %w", err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err = browser.Connect(); err != nil {
		log.WithError(err).Error("Failed to connect to rod browser")
		return "", fmt.Errorf("failed to connect to browser: %w", err)
	}
	defer func() {
		if closeErr := browser.Close(); closeErr != nil {
			log.WithError(closeErr).Error("Error closing rod browser instance")
			if err == nil {
				err = fmt.Errorf("error closing browser: %w", closeErr)
			}
		}
	}()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("failed to create page: %w", err)
	}

	pageCtx, cancel := context.WithTimeout(ctx, f.pageTimeout)
	defer cancel()
	page = page.Context(pageCtx)

	if err = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: f.userAgent}); err != nil {
		return "", fmt.Errorf("failed to set user agent: %w", err)
	}
	if err = page.Navigate(url); err != nil {
		return "", fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if err = page.WaitLoad(); err != nil {
		if errors.Is(pageCtx.Err(), context.DeadlineExceeded) {
			log.WithError(pageCtx.Err()).Warn("Page load timed out")
			return "", fmt.Errorf("page load timed out for %s: %w", url, pageCtx.Err())
		}
		return "", fmt.Errorf("failed waiting for page load: %w", err)
	}

	html, err = page.HTML()
	if err != nil {
		return "", fmt.Errorf("failed to read page html: %w", err)
	}
	log.Debug("Page fetched with rod")
	return html, nil
}
