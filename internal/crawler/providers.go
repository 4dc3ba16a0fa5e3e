package crawler

import (
	"context"
)

// providerCatalog is the manual price catalog for first-party vendors.
// Sources without machine-readable price lists are transcribed here and
// refreshed with releases. An unchanged price is discarded only within the
// five-minute dedup window; a later cycle records it again.
var providerCatalog = []struct {
	name  string
	url   string
	kind  string
	rates []RateRecord
}{
	{
		name: "openai",
		url:  "https://openai.com/api/pricing",
		kind: "llm",
		rates: []RateRecord{
			{Category: "llm", Subcategory: "chat", Description: "GPT-4o", Price: 0.0025, Currency: "USD", Unit: "1k_tokens", PricingType: "per_token"},
			{Category: "llm", Subcategory: "chat-mini", Description: "GPT-4o mini", Price: 0.00015, Currency: "USD", Unit: "1k_tokens", PricingType: "per_token"},
			{Category: "embedding", Description: "text-embedding-3-small", Price: 0.00002, Currency: "USD", Unit: "1k_tokens", PricingType: "per_token"},
			{Category: "image", Subcategory: "generation", Description: "DALL-E 3 standard 1024px", Price: 0.04, Currency: "USD", Unit: "image", PricingType: "per_request"},
			{Category: "audio", Subcategory: "transcription", Description: "Whisper", Price: 0.006, Currency: "USD", Unit: "minute", PricingType: "per_minute"},
		},
	},
	{
		name: "anthropic",
		url:  "https://www.anthropic.com/pricing",
		kind: "llm",
		rates: []RateRecord{
			{Category: "llm", Subcategory: "chat", Description: "Claude Sonnet", Price: 0.003, Currency: "USD", Unit: "1k_tokens", PricingType: "per_token"},
			{Category: "llm", Subcategory: "chat-mini", Description: "Claude Haiku", Price: 0.0008, Currency: "USD", Unit: "1k_tokens", PricingType: "per_token"},
		},
	},
	{
		name: "google",
		url:  "https://ai.google.dev/pricing",
		kind: "llm",
		rates: []RateRecord{
			{Category: "llm", Subcategory: "chat", Description: "Gemini Pro", Price: 0.00125, Currency: "USD", Unit: "1k_tokens", PricingType: "per_token"},
			{Category: "llm", Subcategory: "chat-mini", Description: "Gemini Flash", Price: 0.000075, Currency: "USD", Unit: "1k_tokens", PricingType: "per_token"},
			{Category: "embedding", Description: "text-embedding-004", Price: 0.0000125, Currency: "USD", Unit: "1k_tokens", PricingType: "per_token"},
		},
	},
	{
		name: "mistral",
		url:  "https://mistral.ai/technology/#pricing",
		kind: "llm",
		rates: []RateRecord{
			{Category: "llm", Subcategory: "chat", Description: "Mistral Large", Price: 0.002, Currency: "USD", Unit: "1k_tokens", PricingType: "per_token"},
			{Category: "llm", Subcategory: "chat-mini", Description: "Mistral Small", Price: 0.0002, Currency: "USD", Unit: "1k_tokens", PricingType: "per_token"},
			{Category: "embedding", Description: "mistral-embed", Price: 0.00001, Currency: "USD", Unit: "1k_tokens", PricingType: "per_token"},
		},
	},
}

// StaticProviderCrawler serves a transcribed first-party price list.
type StaticProviderCrawler struct {
	name  string
	url   string
	kind  string
	rates []RateRecord
}

// Name implements Crawler.
func (c *StaticProviderCrawler) Name() string { return c.name }

// Kind implements Crawler.
func (c *StaticProviderCrawler) Kind() string { return KindProvider }

// Crawl stamps the provider identity onto each catalog record.
func (c *StaticProviderCrawler) Crawl(ctx context.Context) (Result, error) {
	records := make([]RateRecord, len(c.rates))
	for i, r := range c.rates {
		r.Provider = c.name
		r.ProviderURL = c.url
		r.ProviderType = c.kind
		records[i] = r
	}
	return Result{Kind: KindProvider, Rates: records}, nil
}

// ProviderCrawlers builds one crawler per cataloged vendor.
func ProviderCrawlers() []Crawler {
	crawlers := make([]Crawler, 0, len(providerCatalog))
	for _, entry := range providerCatalog {
		crawlers = append(crawlers, &StaticProviderCrawler{
			name:  entry.name,
			url:   entry.url,
			kind:  entry.kind,
			rates: entry.rates,
		})
	}
	return crawlers
}
