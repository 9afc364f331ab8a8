package scraper

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/bauhaus93/wishlist-scrape/internal/domain"
)

// ErrNoItemList is returned when a page carries no wishlist item list.
var ErrNoItemList = errors.New("wishlist item list not found")

// Page is the parsed content of one wishlist page.
type Page struct {
	Records []domain.ScrapedRecord
	// NextURL is empty on the last page.
	NextURL string
}

// ParseWishlistPage extracts all items of a wishlist page. pageURL is used to
// resolve relative links. Any unparseable item fails the whole page.
func ParseWishlistPage(pageURL string, r io.Reader) (*Page, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page url %q: %w", pageURL, err)
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	list := doc.Find("ul#g-items").First()
	if list.Length() == 0 {
		return nil, ErrNoItemList
	}

	page := &Page{}
	var parseErr error
	list.ChildrenFiltered("li").EachWithBreak(func(i int, item *goquery.Selection) bool {
		rec, err := parseItem(item)
		if err != nil {
			parseErr = fmt.Errorf("item %d: %w", i, err)
			return false
		}
		rec.URL = withHost(base, rec.URL)
		rec.ImageURL = withScheme(base, rec.ImageURL)
		page.Records = append(page.Records, rec)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	if next, ok := list.Find("a.g-visible-no-js.wl-see-more[href]").First().Attr("href"); ok && next != "" {
		page.NextURL = withHost(base, next)
	}
	return page, nil
}

func parseItem(item *goquery.Selection) (domain.ScrapedRecord, error) {
	var rec domain.ScrapedRecord

	rec.ItemID = strings.TrimSpace(item.AttrOr("data-itemid", ""))
	if rec.ItemID == "" {
		return rec, errors.New("missing item id")
	}

	nameTag := item.Find(`a[id*="itemName"]`).First()
	if nameTag.Length() == 0 {
		return rec, errors.New("missing item name tag")
	}
	rec.Name = strings.TrimSpace(nameTag.Text())
	if rec.Name == "" {
		return rec, errors.New("item name tag has no content")
	}
	link, ok := nameTag.Attr("href")
	if !ok || link == "" {
		return rec, errors.New("item name tag has no link")
	}
	rec.URL = link

	img, ok := item.Find("img[src]").First().Attr("src")
	if !ok || img == "" {
		return rec, errors.New("missing image")
	}
	rec.ImageURL = img

	qtyTag := item.Find(`span[id*="itemRequested_"]`).First()
	if qtyTag.Length() == 0 {
		return rec, errors.New("missing requested quantity")
	}
	qty, err := strconv.Atoi(strings.TrimSpace(qtyTag.Text()))
	if err != nil || qty < 0 {
		return rec, fmt.Errorf("invalid quantity %q", qtyTag.Text())
	}
	rec.Quantity = qty

	if rec.Stars, err = parseStars(item); err != nil {
		return rec, err
	}
	if rec.Price, err = parsePrice(item); err != nil {
		return rec, err
	}
	return rec, nil
}

// parseStars reads labels like "4.5 out of 5 stars" or "4,5 von 5 Sternen".
// Unrated items have no star link and yield 0.
func parseStars(item *goquery.Selection) (float64, error) {
	label, ok := item.Find("a.reviewStarsPopoverLink[aria-label]").First().Attr("aria-label")
	if !ok {
		return 0, nil
	}
	fields := strings.Fields(label)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty star label")
	}
	stars, err := strconv.ParseFloat(strings.ReplaceAll(fields[0], ",", "."), 64)
	if err != nil || stars < 0 || stars > 5 {
		return 0, fmt.Errorf("invalid star label %q", label)
	}
	return stars, nil
}

// parsePrice returns zero when the item has no price section, e.g. when it is
// currently unavailable.
func parsePrice(item *goquery.Selection) (decimal.Decimal, error) {
	section := item.Find(`div[class*="price-section"]`).First()
	if section.Length() == 0 {
		return decimal.Zero, nil
	}
	whole := section.Find("span.a-price-whole").First()
	if whole.Length() == 0 {
		return decimal.Zero, errors.New("missing whole part of price")
	}
	fraction := section.Find("span.a-price-fraction").First()
	if fraction.Length() == 0 {
		return decimal.Zero, errors.New("missing fractional part of price")
	}
	w, f := digits(whole.Text()), digits(fraction.Text())
	if w == "" || f == "" {
		return decimal.Zero, fmt.Errorf("invalid price %q.%q", whole.Text(), fraction.Text())
	}
	return decimal.NewFromString(w + "." + f)
}

// digits drops separators such as "1.299," down to "1299".
func digits(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

// withHost places the path, query and fragment of ref onto the scheme and host of base.
func withHost(base *url.URL, ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	out := *u
	out.Scheme = base.Scheme
	out.Host = base.Host
	out.User = base.User
	return out.String()
}

// withScheme keeps ref's host but takes the scheme of base.
func withScheme(base *url.URL, ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	out := *u
	out.Scheme = base.Scheme
	if out.Host == "" {
		out.Host = base.Host
	}
	return out.String()
}
