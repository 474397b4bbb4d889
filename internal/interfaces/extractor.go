package interfaces

import (
	"context"
)

// ExtractedPage holds the content and metadata extracted from one web page
type ExtractedPage struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Text  string `json:"text"` // Cleaned main-content text (markdown)
	HTML  string `json:"html"` // Raw rendered HTML
}

// ContentExtractor fetches a URL in a rendered browser and extracts the
// main content. Any failure here is fatal for the owning task.
type ContentExtractor interface {
	Extract(ctx context.Context, url string) (*ExtractedPage, error)
	Close() error
}
