package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/tonyzinh/system-hospital-backend/pkg/apperr"
	"github.com/tonyzinh/system-hospital-backend/pkg/processor"
)

type ScraperConfig struct {
	Timeout   time.Duration
	MaxBytes  int64
	UserAgent string
	RateLimit float64 // requests per second
}

// Page is a fetched document reduced to its primary text.
type Page struct {
	URL         string
	Title       string
	Text        string
	ContentType string
	Bytes       int
}

type Scraper struct {
	config  ScraperConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewWithConfig(config ScraperConfig) *Scraper {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxBytes == 0 {
		config.MaxBytes = 2_000_000
	}
	if config.UserAgent == "" {
		config.UserAgent = "PI4-HospitalBot/1.0 (+for academic demo)"
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2 // 2 requests per second by default
	}

	return &Scraper{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

func New() *Scraper {
	return NewWithConfig(ScraperConfig{})
}

// ValidateURL accepts only absolute http(s) URLs.
func ValidateURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, apperr.Invalid("url", "url é obrigatório.")
	}
	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, apperr.Invalid("url", "URL não suportada (apenas http/https).")
	}
	return parsed, nil
}

// Fetch downloads a single page and extracts its primary text.
func (s *Scraper) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	if _, err := ValidateURL(rawURL); err != nil {
		return nil, err
	}

	// Apply rate limiting
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", s.config.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.config.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rawURL, err)
	}
	if int64(len(body)) > s.config.MaxBytes {
		return nil, apperr.Invalid("url", fmt.Sprintf("Página muito grande (limite %s).", humanBytes(s.config.MaxBytes)))
	}

	title, text := s.extract(body)

	return &Page{
		URL:         rawURL,
		Title:       title,
		Text:        text,
		ContentType: resp.Header.Get("Content-Type"),
		Bytes:       len(body),
	}, nil
}

func (s *Scraper) extract(body []byte) (string, string) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", stripTags(string(body))
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	text := s.extractMainContent(doc)
	if text == "" {
		text = stripTags(string(body))
	}
	return title, text
}

const blockElements = "p, div, br, li, tr, section, article, h1, h2, h3, h4, h5, h6, blockquote, pre"

func (s *Scraper) extractMainContent(doc *goquery.Document) string {
	doc.Find("script, style, noscript, nav, header, footer, aside, form, iframe, svg").Remove()

	// Keep block boundaries as line breaks so words do not run together
	doc.Find(blockElements).Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml("\n")
	})

	// Try to find main content area
	selectors := []string{
		"article",
		"main",
		"[role=main]",
		".entry-content",
		".post-content",
		".content",
		"#content",
	}

	var content string
	for _, selector := range selectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			content = processor.Normalize(selected.Text())
			if content != "" {
				break
			}
		}
	}

	// Fallback to body if no main content found
	if content == "" {
		content = processor.Normalize(doc.Find("body").Text())
	}

	return content
}

var (
	tagPattern   = regexp.MustCompile(`(?s)<[^>]+>`)
	blockPattern = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
)

// stripTags is the crude fallback when structured extraction finds nothing.
func stripTags(html string) string {
	html = blockPattern.ReplaceAllString(html, " ")
	return processor.Normalize(tagPattern.ReplaceAllString(html, " "))
}

func humanBytes(n int64) string {
	if n >= 1_000_000 && n%1_000_000 == 0 {
		return fmt.Sprintf("%dMB", n/1_000_000)
	}
	return fmt.Sprintf("%d bytes", n)
}
