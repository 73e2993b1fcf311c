package scraper

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"pricecompare/models"

	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/log"
	"github.com/go-rod/rod"
)

const (
	bigBasketURL         = "https://www.bigbasket.com/"
	bigBasketHost        = "bigbasket.com"
	bigBasketSearchInput = "input[placeholder='Search for Products...']"
	bigBasketCount       = "span[class*='CategoryInfo___StyledLabel2']"
	bigBasketCard        = "li[class*='PaginateItems']"
	bigBasketBrand       = "span[class*='BrandName___StyledLabel2']"
	bigBasketName        = "h3.block.m-0.line-clamp-2"
	bigBasketPackChanger = "span[class*='PackChanger___StyledLabel']"
	bigBasketPackSelect  = "span[class*='PackSelector___StyledLabel'] span"
	bigBasketPrice       = "div[class*='Pricing___StyledDiv'] span:first-child"
	bigBasketTag         = "span[class*='Tags___StyledLabel2']"

	bigBasketUnavailable = "Currently unavailable"
	bigBasketSeparator   = "more items from"

	// defaultBigBasketLimit applies when the result count cannot be read
	defaultBigBasketLimit = 5
)

type bigBasket struct {
	opts   Options
	logger *log.Logger
}

func newBigBasket(opts Options, logger *log.Logger) *bigBasket {
	return &bigBasket{opts: opts, logger: logger}
}

func (b *bigBasket) source() string { return SourceBigBasket }

func (b *bigBasket) open(page *rod.Page) error {
	if err := page.Navigate(bigBasketURL); err != nil {
		return err
	}
	if err := settle(page, time.Second); err != nil {
		return err
	}

	info, err := page.Info()
	if err != nil {
		return fmt.Errorf("failed to read page info: %w", err)
	}
	if !strings.Contains(strings.ToLower(info.URL), bigBasketHost) {
		return fmt.Errorf("redirected to %s: %w", info.URL, ErrBlocked)
	}
	return nil
}

func (b *bigBasket) search(page *rod.Page, query string) error {
	if err := typeQuery(page, bigBasketSearchInput, query, b.opts.ElementWait); err != nil {
		return err
	}
	if _, err := page.Timeout(b.opts.ElementWait).Element(bigBasketCard); err != nil {
		return fmt.Errorf("no product cards: %w", err)
	}
	return settle(page, time.Second)
}

func (b *bigBasket) parse(html string) ([]models.RawListing, error) {
	return parseBigBasket(html)
}

// parseBigBasket reads the cards of a BigBasket search page. It looks at no
// more entries than the page's result count, skips unavailable products and
// cards without a price, and stops at the "More items from" separator that
// introduces unrelated suggestions.
func parseBigBasket(html string) ([]models.RawListing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	limit := defaultBigBasketLimit
	if n, err := strconv.Atoi(cleanText(doc.Find(bigBasketCount).First().Text())); err == nil && n > 0 {
		limit = n
	}

	first := doc.Find(bigBasketCard).First()
	if first.Length() == 0 {
		return nil, nil
	}

	var listings []models.RawListing
	first.Parent().Children().EachWithBreak(func(i int, child *goquery.Selection) bool {
		if i >= limit {
			return false
		}

		class, _ := child.Attr("class")
		if !strings.Contains(class, "PaginateItems") {
			separator := false
			child.Find("p").Each(func(_ int, p *goquery.Selection) {
				if strings.Contains(strings.ToLower(p.Text()), bigBasketSeparator) {
					separator = true
				}
			})
			return !separator
		}

		if bigBasketIsUnavailable(child) {
			return true
		}

		price := cleanText(child.Find(bigBasketPrice).First().Text())
		if !models.IsKnown(price) {
			return true
		}

		packing := cleanText(child.Find(bigBasketPackChanger).First().Text())
		if packing == "" {
			packing = cleanText(child.Find(bigBasketPackSelect).First().Text())
		}

		listings = append(listings, models.RawListing{
			Brand:    models.OrUnknown(cleanText(child.Find(bigBasketBrand).First().Text())),
			ItemName: models.OrUnknown(cleanText(child.Find(bigBasketName).First().Text())),
			Packing:  models.OrUnknown(packing),
			Price:    price,
		})
		return true
	})

	return listings, nil
}

func bigBasketIsUnavailable(card *goquery.Selection) bool {
	unavailable := false
	card.Find(bigBasketTag).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if cleanText(s.Text()) == bigBasketUnavailable {
			unavailable = true
			return false
		}
		return true
	})
	return unavailable
}
