// -----------------------------------------------------------------------
// Content Extractor - main-content extraction from rendered pages
// -----------------------------------------------------------------------

package extractor

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

var blankLines = regexp.MustCompile(`\n{3,}`)

// Service fetches a URL with the browser and extracts its main content.
// Readability isolates the article body; the result is converted to
// markdown. When readability finds nothing, the raw body text is used as
// a fallback before giving up.
type Service struct {
	fetcher *ChromeFetcher
	logger  arbor.ILogger
}

// NewService creates a new content extraction service
func NewService(config common.ExtractorConfig, logger arbor.ILogger) *Service {
	return &Service{
		fetcher: NewChromeFetcher(config, logger),
		logger:  logger,
	}
}

// Extract fetches the URL and returns its cleaned main content.
// Returns models.ErrNoContent when nothing extractable remains.
func (s *Service) Extract(ctx context.Context, rawURL string) (*interfaces.ExtractedPage, error) {
	page, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %s: %w", rawURL, err)
	}

	title := page.Title
	text := ""

	article, err := readability.FromReader(strings.NewReader(page.HTML), parsedURL)
	if err != nil {
		s.logger.Warn().Err(err).Str("url", rawURL).Msg("Readability extraction failed, using body fallback")
	} else {
		if article.Title != "" {
			title = article.Title
		}
		text = s.toMarkdown(article.Content, rawURL)
	}

	if strings.TrimSpace(text) == "" {
		s.logger.Warn().Str("url", rawURL).Msg("Readability found no main content, falling back to body text")
		text = s.bodyText(page.HTML)
	}

	text = cleanText(text)
	if text == "" {
		return nil, fmt.Errorf("%w: %s", models.ErrNoContent, rawURL)
	}

	if title == "" {
		title = "Untitled"
	}

	s.logger.Info().
		Str("url", rawURL).
		Str("title", title).
		Int("text_length", len(text)).
		Msg("Content extraction complete")

	return &interfaces.ExtractedPage{
		URL:   rawURL,
		Title: title,
		Text:  text,
		HTML:  page.HTML,
	}, nil
}

// toMarkdown converts the extracted article HTML to markdown
func (s *Service) toMarkdown(articleHTML, baseURL string) string {
	if strings.TrimSpace(articleHTML) == "" {
		return ""
	}
	converter := md.NewConverter(baseURL, true, nil)
	markdown, err := converter.ConvertString(articleHTML)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Markdown conversion failed, using article HTML as plain text")
		return stripTags(articleHTML)
	}
	return markdown
}

// bodyText extracts the visible body text of the page, stripping
// scripts, styles, and navigation chrome
func (s *Service) bodyText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script, style, nav, footer, aside, noscript").Remove()
	body := doc.Find("body")
	if body.Length() == 0 {
		return ""
	}
	return body.Text()
}

// stripTags removes markup from an HTML fragment, keeping text nodes
func stripTags(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return doc.Text()
}

// cleanText normalizes whitespace in extracted text
func cleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	text = strings.Join(lines, "\n")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Close shuts down the underlying browser
func (s *Service) Close() error {
	return s.fetcher.Close()
}
