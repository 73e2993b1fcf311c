package scraper

import (
	"regexp"
	"strings"
)

// Block kinds
const (
	BlockCaptcha   = "captcha"
	BlockHTTPError = "http_error"
	BlockBotWall   = "bot_wall"
)

// BotVerdict is the outcome of inspecting a page
type BotVerdict struct {
	Blocked bool
	Kind    string
	Reason  string
	Score   float64
}

// BotDetector detects bot walls and CAPTCHAs
type BotDetector struct {
	botPatterns     []*regexp.Regexp
	captchaPatterns []*regexp.Regexp
	blockPatterns   []*regexp.Regexp
}

// NewBotDetector creates a new bot detector
func NewBotDetector() *BotDetector {
	return &BotDetector{
		botPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)access denied`),
			regexp.MustCompile(`(?i)you have been blocked`),
			regexp.MustCompile(`(?i)bot detected`),
			regexp.MustCompile(`(?i)unusual traffic`),
			regexp.MustCompile(`(?i)security check`),
			regexp.MustCompile(`(?i)checking your browser`),
			regexp.MustCompile(`(?i)ddos protection`),
			regexp.MustCompile(`(?i)request unsuccessful`),
			regexp.MustCompile(`(?i)incapsula incident`),
			regexp.MustCompile(`(?i)reference #[0-9a-f.]+`),
		},
		captchaPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)captcha`),
			regexp.MustCompile(`(?i)verify you are (a )?human`),
			regexp.MustCompile(`(?i)are you a robot`),
			regexp.MustCompile(`(?i)select all images`),
			regexp.MustCompile(`(?i)press (and|&) hold`),
		},
		blockPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)403 forbidden`),
			regexp.MustCompile(`(?i)429 too many requests`),
			regexp.MustCompile(`(?i)503 service unavailable`),
			regexp.MustCompile(`(?i)site (is )?temporarily unavailable`),
		},
	}
}

// Detect checks the visible text and title of a page. Grocery result pages
// are long, so a short page with any indicator weighs more.
func (bd *BotDetector) Detect(pageText, pageTitle string) BotVerdict {
	content := strings.ToLower(pageText + " " + pageTitle)

	score := 0.0
	var reasons []string
	kind := ""

	for _, pattern := range bd.captchaPatterns {
		if pattern.MatchString(content) {
			score += 0.5
			reasons = append(reasons, "captcha: "+pattern.String())
			kind = BlockCaptcha
		}
	}

	for _, pattern := range bd.blockPatterns {
		if pattern.MatchString(content) {
			score += 0.4
			reasons = append(reasons, "http error: "+pattern.String())
			if kind == "" {
				kind = BlockHTTPError
			}
		}
	}

	for _, pattern := range bd.botPatterns {
		if pattern.MatchString(content) {
			score += 0.3
			reasons = append(reasons, pattern.String())
		}
	}

	if score > 0 && len(strings.TrimSpace(pageText)) < 1000 {
		score += 0.2
		reasons = append(reasons, "short page with bot indicators")
	}

	if score > 1.0 {
		score = 1.0
	}
	if kind == "" {
		kind = BlockBotWall
	}

	return BotVerdict{
		Blocked: score > 0.3,
		Kind:    kind,
		Reason:  strings.Join(reasons, "; "),
		Score:   score,
	}
}
