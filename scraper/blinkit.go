package scraper

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"pricecompare/models"

	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/log"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

const (
	blinkitURL            = "https://blinkit.com/s/"
	blinkitLocationButton = "button.btn.location-box.mask-button"
	blinkitSearchInput    = "input.SearchBarContainer__Input-sc-hl8pft-3"
	blinkitCard           = "div[role='button'][tabindex='0']"
	blinkitTitle          = "div.tw-text-300.tw-font-semibold.tw-line-clamp-2"
	blinkitPacking        = "div.tw-text-200.tw-font-medium.tw-line-clamp-1"
	blinkitPrice          = "div.tw-text-200.tw-font-semibold"

	popupButtons = "div[role='dialog'] button, div[class*='popup'] button, div[class*='Modal'] button"
)

var rupeeAmount = regexp.MustCompile(`₹\s*[0-9][0-9,]*(?:\.[0-9]+)?`)

type blinkit struct {
	opts   Options
	logger *log.Logger
}

func newBlinkit(opts Options, logger *log.Logger) *blinkit {
	return &blinkit{opts: opts, logger: logger}
}

func (b *blinkit) source() string { return SourceBlinkit }

func (b *blinkit) open(page *rod.Page) error {
	if err := page.Navigate(blinkitURL); err != nil {
		return err
	}
	if err := settle(page, time.Second); err != nil {
		return err
	}

	// without a delivery location the search shows no prices
	btn, err := page.Timeout(5 * time.Second).Element(blinkitLocationButton)
	if err != nil {
		b.logger.Debug("location button not found", "err", err)
		return nil
	}
	if err := btn.CancelTimeout().Click(proto.InputMouseButtonLeft, 1); err != nil {
		b.logger.Debug("location button click failed", "err", err)
		return nil
	}
	b.logger.Debug("clicked detect my location")
	return settle(page, time.Second)
}

func (b *blinkit) search(page *rod.Page, query string) error {
	if err := typeQuery(page, blinkitSearchInput, query, b.opts.ElementWait); err != nil {
		return err
	}
	dismissPopups(page, popupButtons, b.logger)

	if _, err := page.Timeout(b.opts.ElementWait).Element(blinkitCard); err != nil {
		return fmt.Errorf("no product cards: %w", err)
	}
	return settle(page, time.Second)
}

func (b *blinkit) parse(html string) ([]models.RawListing, error) {
	return parseBlinkit(html)
}

// parseBlinkit reads the product cards of a Blinkit search page
func parseBlinkit(html string) ([]models.RawListing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var listings []models.RawListing
	doc.Find(blinkitCard).Each(func(i int, card *goquery.Selection) {
		title := card.Find(blinkitTitle)
		if title.Length() == 0 {
			// category tiles and other buttons share the card selector
			return
		}

		brand, itemName := splitTitle(cleanText(title.First().Text()))
		listings = append(listings, models.RawListing{
			Brand:    brand,
			ItemName: itemName,
			Packing:  models.OrUnknown(cleanText(card.Find(blinkitPacking).First().Text())),
			Price:    blinkitCardPrice(card),
		})
	})

	return listings, nil
}

// blinkitCardPrice returns the first rupee amount among the price candidates
func blinkitCardPrice(card *goquery.Selection) string {
	price := models.Unknown
	card.Find(blinkitPrice).EachWithBreak(func(i int, s *goquery.Selection) bool {
		text := cleanText(s.Text())
		if strings.HasPrefix(text, "₹") {
			price = text
			return false
		}
		if raw, err := goquery.OuterHtml(s); err == nil {
			if m := rupeeAmount.FindString(raw); m != "" {
				price = m
				return false
			}
		}
		return true
	})
	return price
}

// cleanText collapses runs of whitespace
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
