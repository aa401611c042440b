package analyzer

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/inboxkit/newsletter-detector/internal/core"
)

// unsubscribePhrases strongly indicate newsletter content when present in the
// body text or link targets
var unsubscribePhrases = []string{
	"unsubscribe",
	"opt out",
	"opt-out",
	"manage preferences",
	"email preferences",
	"update your preferences",
}

// ctaPhrases are common newsletter call-to-action link texts
var ctaPhrases = []string{
	"read more",
	"shop now",
	"learn more",
	"view in browser",
	"view online",
	"see all",
}

// ContentAnalyzer scores the structure of an email's HTML body: newsletter
// templates use fixed-width table layouts, repeated content blocks, and
// footer boilerplate that personal mail does not.
type ContentAnalyzer struct {
	weight float64
	logger *zap.Logger
}

// NewContentAnalyzer creates a content-structure analyzer with the given weight
func NewContentAnalyzer(weight float64, logger *zap.Logger) *ContentAnalyzer {
	return &ContentAnalyzer{
		weight: weight,
		logger: logger,
	}
}

// Method implements core.Analyzer
func (a *ContentAnalyzer) Method() core.DetectionMethod {
	return core.MethodContentStructure
}

// Weight implements core.Analyzer
func (a *ContentAnalyzer) Weight() float64 {
	return a.weight
}

// Analyze finds the first text/html part and scores its layout, elements,
// and repeated sections. Malformed payloads degrade to a low-confidence zero
// score instead of failing the ensemble.
func (a *ContentAnalyzer) Analyze(ctx context.Context, email *core.Email, _ *core.UserFeedback) (*core.DetectionScore, error) {
	var part *core.EmailPayload
	if email != nil {
		part = core.FindHTMLPart(email.Payload)
	}
	if part == nil {
		return &core.DetectionScore{
			Method:     core.MethodContentStructure,
			Score:      0.1,
			Confidence: 0.5,
			Reason:     "no HTML content found",
		}, nil
	}

	html, err := core.DecodeBody(part.Body)
	if err != nil {
		a.logger.Debug("Failed to decode HTML body",
			zap.String("email_id", email.ID),
			zap.Error(err))
		return &core.DetectionScore{
			Method:     core.MethodContentStructure,
			Score:      0,
			Confidence: 0.1,
			Reason:     fmt.Sprintf("failed to decode HTML body: %v", err),
		}, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return &core.DetectionScore{
			Method:     core.MethodContentStructure,
			Score:      0,
			Confidence: 0.1,
			Reason:     fmt.Sprintf("failed to parse HTML: %v", err),
		}, nil
	}

	layout := a.layoutScore(doc)
	element := a.elementScore(doc)
	section := a.sectionScore(doc)
	score := 0.4*layout + 0.4*element + 0.2*section

	// Longer HTML gives the structural heuristics more to work with
	confidence := 0.6
	if len(html) >= 1000 {
		confidence = 0.8
	}

	a.logger.Debug("Content structure analysis complete",
		zap.String("email_id", email.ID),
		zap.Float64("layout", layout),
		zap.Float64("element", element),
		zap.Float64("section", section))

	return &core.DetectionScore{
		Method:     core.MethodContentStructure,
		Score:      score,
		Confidence: confidence,
		Reason: fmt.Sprintf("layout %.2f, elements %.2f, repeated sections %.2f",
			layout, element, section),
		Metadata: map[string]string{
			"layout_score":  fmt.Sprintf("%.2f", layout),
			"element_score": fmt.Sprintf("%.2f", element),
			"section_score": fmt.Sprintf("%.2f", section),
			"html_length":   fmt.Sprintf("%d", len(html)),
		},
	}, nil
}

// layoutScore detects template layout: fixed-width containers, table-based
// structure, and responsive media queries
func (a *ContentAnalyzer) layoutScore(doc *goquery.Document) float64 {
	score := 0.0

	tables := doc.Find("table").Length()
	if tables > 0 {
		score += 0.3
	}
	if tables >= 3 {
		score += 0.2
	}

	fixedWidth := false
	doc.Find("table, td, div").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if _, ok := sel.Attr("width"); ok {
			fixedWidth = true
			return false
		}
		if style, ok := sel.Attr("style"); ok {
			style = strings.ToLower(style)
			if strings.Contains(style, "width:") || strings.Contains(style, "max-width") {
				fixedWidth = true
				return false
			}
		}
		return true
	})
	if fixedWidth {
		score += 0.3
	}

	mediaQuery := false
	doc.Find("style").Each(func(_ int, sel *goquery.Selection) {
		if strings.Contains(sel.Text(), "@media") {
			mediaQuery = true
		}
	})
	if mediaQuery {
		score += 0.2
	}

	return capScore(score)
}

// elementScore detects newsletter building blocks: header/footer bands, CTA
// links, prominent images, and unsubscribe boilerplate
func (a *ContentAnalyzer) elementScore(doc *goquery.Document) float64 {
	score := 0.0

	if a.hasUnsubscribePhrase(doc) {
		score += 0.4
	}

	headerFooter := doc.Find("[class*=header], [class*=footer], [id*=header], [id*=footer], header, footer").Length()
	if headerFooter > 0 {
		score += 0.2
	}

	cta := 0
	doc.Find("a").Each(func(_ int, sel *goquery.Selection) {
		class, _ := sel.Attr("class")
		class = strings.ToLower(class)
		if strings.Contains(class, "btn") || strings.Contains(class, "button") || strings.Contains(class, "cta") {
			cta++
			return
		}
		text := strings.ToLower(strings.TrimSpace(sel.Text()))
		for _, phrase := range ctaPhrases {
			if text == phrase {
				cta++
				return
			}
		}
	})
	if cta > 0 {
		score += 0.2
	}

	prominentImages := 0
	doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
		if width, ok := sel.Attr("width"); ok {
			var w int
			if _, err := fmt.Sscanf(width, "%d", &w); err == nil && w >= 300 {
				prominentImages++
			}
		}
	})
	if prominentImages > 0 {
		score += 0.2
	}

	return capScore(score)
}

// sectionScore counts repeated templated blocks, detected through class names
// that recur on div and table elements
func (a *ContentAnalyzer) sectionScore(doc *goquery.Document) float64 {
	classCounts := make(map[string]int)
	doc.Find("div, table, td").Each(func(_ int, sel *goquery.Selection) {
		class, ok := sel.Attr("class")
		if !ok {
			return
		}
		for _, name := range strings.Fields(class) {
			classCounts[strings.ToLower(name)]++
		}
	})

	repeated := 0
	for _, count := range classCounts {
		if count >= 3 {
			repeated++
		}
	}

	return capScore(float64(repeated) * 0.25)
}

func (a *ContentAnalyzer) hasUnsubscribePhrase(doc *goquery.Document) bool {
	text := strings.ToLower(doc.Text())
	for _, phrase := range unsubscribePhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}

	found := false
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		if strings.Contains(strings.ToLower(href), "unsubscribe") {
			found = true
			return false
		}
		return true
	})
	return found
}

func capScore(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}
