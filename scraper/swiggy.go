package scraper

import (
	"fmt"
	"strings"
	"time"

	"pricecompare/models"

	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/log"
	"github.com/go-rod/rod"
)

const (
	swiggyURL         = "https://www.swiggy.com/instamart/search?custom_back=true"
	swiggySearchInput = "input[type='search'][data-testid='search-page-header-search-bar-input']"
	swiggyCard        = "div[data-testid='default_container_ux4']"
	swiggyTitle       = "div.sc-aXZVg.kyEzVU._1sPB0"
	swiggyPacking     = "div._3eIPt, div._1HYm8, div.entQHA"
	swiggyPrice       = "div[data-testid='item-offer-price']"
)

type swiggy struct {
	opts   Options
	logger *log.Logger
}

func newSwiggy(opts Options, logger *log.Logger) *swiggy {
	return &swiggy{opts: opts, logger: logger}
}

func (s *swiggy) source() string { return SourceSwiggy }

func (s *swiggy) open(page *rod.Page) error {
	if err := page.Navigate(swiggyURL); err != nil {
		return err
	}
	if err := settle(page, time.Second); err != nil {
		return err
	}
	if _, err := page.Timeout(s.opts.ElementWait).Element(swiggySearchInput); err != nil {
		return fmt.Errorf("search page did not render: %w", err)
	}
	dismissPopups(page, popupButtons, s.logger)
	return nil
}

func (s *swiggy) search(page *rod.Page, query string) error {
	if err := typeQuery(page, swiggySearchInput, query, s.opts.ElementWait); err != nil {
		return err
	}
	dismissPopups(page, popupButtons, s.logger)

	if _, err := page.Timeout(s.opts.ElementWait).Element(swiggyCard); err != nil {
		return fmt.Errorf("no product cards: %w", err)
	}
	return settle(page, time.Second)
}

func (s *swiggy) parse(html string) ([]models.RawListing, error) {
	return parseSwiggy(html)
}

// parseSwiggy reads the product cards of an Instamart search page
func parseSwiggy(html string) ([]models.RawListing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var listings []models.RawListing
	doc.Find(swiggyCard).Each(func(i int, card *goquery.Selection) {
		brand, itemName := splitTitle(cleanText(card.Find(swiggyTitle).First().Text()))
		listings = append(listings, models.RawListing{
			Brand:    brand,
			ItemName: itemName,
			Packing:  models.OrUnknown(cleanText(card.Find(swiggyPacking).First().Text())),
			Price:    models.OrUnknown(cleanText(card.Find(swiggyPrice).First().Text())),
		})
	})

	return listings, nil
}
