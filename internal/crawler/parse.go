package crawler

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"prodintel/internal/types"
)

// page holds the structural pieces of a parsed product page.
type page struct {
	Title      string
	MetaDesc   string
	Headings   []string
	ListItems  []string
	Paragraphs []string
}

var skipTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"svg":      true,
	"iframe":   true,
	"nav":      true,
	"footer":   true,
}

// parsePage walks the HTML tree and collects title, meta description,
// headings, list items, and paragraph text.
func parsePage(rawHTML string) (*page, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, err
	}

	p := &page{}
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if skipTags[n.Data] {
				return
			}
			switch n.Data {
			case "title":
				if p.Title == "" {
					p.Title = collapseSpace(textContent(n))
				}
				return
			case "meta":
				if attrVal(n, "name") == "description" {
					p.MetaDesc = collapseSpace(attrVal(n, "content"))
				}
			case "h1", "h2", "h3":
				if t := collapseSpace(textContent(n)); t != "" {
					p.Headings = append(p.Headings, t)
				}
				return
			case "li":
				if t := collapseSpace(textContent(n)); t != "" {
					p.ListItems = append(p.ListItems, t)
				}
				return
			case "p", "td", "dd":
				if t := collapseSpace(textContent(n)); t != "" {
					p.Paragraphs = append(p.Paragraphs, t)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return p, nil
}

// CleanText renders the page as plain text, one paragraph per block.
func (p *page) CleanText() string {
	var blocks []string
	if p.Title != "" {
		blocks = append(blocks, p.Title)
	}
	if p.MetaDesc != "" {
		blocks = append(blocks, p.MetaDesc)
	}
	blocks = append(blocks, p.Headings...)
	blocks = append(blocks, p.Paragraphs...)
	if len(p.ListItems) > 0 {
		blocks = append(blocks, strings.Join(p.ListItems, "\n"))
	}
	return strings.Join(blocks, "\n\n")
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString(" ")
			return
		}
		if n.Type == html.ElementNode && skipTags[n.Data] {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

var spaceRe = regexp.MustCompile(`\s+`)

func collapseSpace(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// ============================================================================
// STRUCTURED FACT EXTRACTION
// ============================================================================

var priceRe = regexp.MustCompile(`(\$|€|£|USD\s?|EUR\s?|GBP\s?)(\d{1,3}(?:[,.]\d{3})*(?:\.\d{2})?)`)

var currencySymbols = map[string]string{
	"$": "USD", "€": "EUR", "£": "GBP",
	"USD": "USD", "EUR": "EUR", "GBP": "GBP",
}

var benefitMarkers = []string{
	"you get", "you'll", "helps you", "so you can", "save time", "save money",
	"boost", "improve", "increase", "faster", "easier", "effortless",
}

var painMarkers = []string{
	"tired of", "struggling", "struggle", "frustrated", "sick of",
	"stop wasting", "no more", "without the hassle", "pain",
}

var complianceMarkers = []string{
	"guarantee", "guaranteed", "cure", "cures", "miracle", "risk-free",
	"100% results", "clinically proven", "fda", "lose weight",
}

const maxFactItems = 12

// extractFacts derives structured product facts from page structure using
// marker heuristics. Pages are messy; anything not matched stays in the
// free-text snippets, so misses degrade retrieval quality rather than lose
// data.
func extractFacts(p *page) types.IntelligenceData {
	facts := types.IntelligenceData{
		SchemaVersion: types.IntelligenceSchemaVersion,
		Title:         p.Title,
		Summary:       p.MetaDesc,
	}
	if facts.Summary == "" && len(p.Paragraphs) > 0 {
		facts.Summary = p.Paragraphs[0]
	}

	fullText := p.CleanText()
	if m := priceRe.FindStringSubmatch(fullText); m != nil {
		facts.Price = strings.ReplaceAll(m[2], ",", "")
		facts.Currency = currencySymbols[strings.TrimSpace(m[1])]
	}

	for _, item := range p.ListItems {
		if len(item) < 8 || len(item) > 300 {
			continue
		}
		lower := strings.ToLower(item)
		switch {
		case containsAny(lower, painMarkers):
			facts.PainPoints = appendCapped(facts.PainPoints, item)
		case containsAny(lower, benefitMarkers):
			facts.Benefits = appendCapped(facts.Benefits, item)
		default:
			facts.Features = appendCapped(facts.Features, item)
		}
	}

	for _, h := range p.Headings {
		lower := strings.ToLower(h)
		if containsAny(lower, painMarkers) {
			facts.PainPoints = appendCapped(facts.PainPoints, h)
		} else if len(h) > 15 && h != p.Title {
			facts.MarketingAngles = appendCapped(facts.MarketingAngles, h)
		}
	}

	for _, sentence := range splitSentences(fullText) {
		lower := strings.ToLower(sentence)
		if containsAny(lower, complianceMarkers) {
			facts.ComplianceFlags = appendCapped(facts.ComplianceFlags, sentence)
		}
	}

	return facts
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func appendCapped(list []string, item string) []string {
	if len(list) >= maxFactItems {
		return list
	}
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}

func splitSentences(text string) []string {
	var out []string
	for _, block := range strings.Split(text, "\n") {
		for _, s := range strings.Split(block, ". ") {
			s = strings.TrimSpace(s)
			if len(s) >= 20 && len(s) <= 400 {
				out = append(out, s)
			}
		}
	}
	return out
}

// scoreQuality estimates extraction quality in [0, 1] from text volume and
// how much structure the page yielded.
func scoreQuality(p *page, facts types.IntelligenceData) float64 {
	score := 0.0
	if facts.Title != "" {
		score += 0.2
	}
	if facts.Summary != "" {
		score += 0.1
	}
	if facts.Price != "" {
		score += 0.1
	}
	if len(facts.Features) > 0 {
		score += 0.2
	}
	if len(facts.Benefits) > 0 || len(facts.PainPoints) > 0 {
		score += 0.1
	}

	textLen := len(p.CleanText())
	switch {
	case textLen >= 2000:
		score += 0.3
	case textLen >= 500:
		score += 0.2
	case textLen >= 100:
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}
