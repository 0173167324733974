package detect

import "strings"

// Agent categories.
const (
	CategoryAITraining     = "AI Training"
	CategorySearchEngine   = "Search Engine"
	CategorySocialMedia    = "Social Media"
	CategoryGenericCrawler = "Generic Crawler"
	CategoryGenericSpider  = "Generic Spider"
	CategoryGenericBot     = "Generic Bot"
)

// CatalogEntry maps a lower-cased user-agent substring to a known operator.
type CatalogEntry struct {
	Substring  string
	Operator   string
	Category   string
	Confidence float64
}

// defaultCatalog is ordered: named operators first, generic terms last.
// Lookup is first-match-wins, so "googlebot" must be tested before the
// bare "bot" entry. Do not reorder casually.
var defaultCatalog = []CatalogEntry{
	// AI company crawlers
	{"anthropic-ai", "Anthropic", CategoryAITraining, 1.0},
	{"claude-web", "Anthropic", CategoryAITraining, 1.0},
	{"chatgpt-user", "OpenAI", CategoryAITraining, 1.0},
	{"gptbot", "OpenAI", CategoryAITraining, 1.0},
	{"cohere-ai", "Cohere", CategoryAITraining, 1.0},
	{"perplexitybot", "Perplexity", CategoryAITraining, 1.0},
	{"ccbot", "Common Crawl", CategoryAITraining, 1.0},
	{"bytespider", "ByteDance", CategoryAITraining, 1.0},
	{"applebot-extended", "Apple", CategoryAITraining, 1.0},
	{"diffbot", "Diffbot", CategoryAITraining, 1.0},
	{"imagesiftbot", "ImageSift", CategoryAITraining, 1.0},
	{"webz.io", "Webz.io", CategoryAITraining, 1.0},

	// Search engine and social media crawlers
	{"googlebot", "Google", CategorySearchEngine, 1.0},
	{"google-extended", "Google", CategorySearchEngine, 1.0},
	{"googleother", "Google", CategorySearchEngine, 1.0},
	{"bingbot", "Microsoft", CategorySearchEngine, 1.0},
	{"facebookbot", "Meta", CategorySocialMedia, 1.0},

	// Generic patterns (lower confidence, likelier false positives)
	{"crawl", "Unknown", CategoryGenericCrawler, 0.7},
	{"spider", "Unknown", CategoryGenericSpider, 0.7},
	{"bot", "Unknown", CategoryGenericBot, 0.6},
}

// Catalog is an immutable, ordered table of known agent patterns.
type Catalog struct {
	entries []CatalogEntry
}

// NewCatalog returns the built-in catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: defaultCatalog}
}

// NewCatalogWithEntries builds a catalog from an explicit ordered table.
func NewCatalogWithEntries(entries []CatalogEntry) *Catalog {
	copied := make([]CatalogEntry, len(entries))
	copy(copied, entries)
	return &Catalog{entries: copied}
}

// Match tests the lower-cased user-agent against the table in declared
// order and returns the first entry whose substring occurs in it.
func (c *Catalog) Match(userAgent string) (CatalogEntry, bool) {
	ua := strings.ToLower(userAgent)
	for _, e := range c.entries {
		if strings.Contains(ua, e.Substring) {
			return e, true
		}
	}
	return CatalogEntry{}, false
}
