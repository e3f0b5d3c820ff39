package wikipedia

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is expanded per language; "{lang}" is replaced by the wiki code.
const DefaultBaseURL = "https://{lang}.wikipedia.org"

const userAgent = "kidz-gpt/1.0 (topic image lookup)"

const thumbSize = "500"

var wikiLanguages = map[string]struct{}{
	"en": {}, "hi": {}, "bn": {}, "ta": {}, "te": {},
}

// Client looks up a representative image for a topic.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Image is a resolved picture and the page it came from.
type Image struct {
	URL     string `json:"imageUrl"`
	Title   string `json:"title"`
	PageURL string `json:"pageUrl"`
}

// ImageURL returns a thumbnail URL for keyword, or "" when none exists.
func (c *Client) ImageURL(ctx context.Context, keyword, lang string) (string, error) {
	img, err := c.Lookup(ctx, keyword, lang)
	if err != nil || img == nil {
		return "", err
	}
	return img.URL, nil
}

// Lookup searches the language wiki first and English second.
func (c *Client) Lookup(ctx context.Context, keyword, lang string) (*Image, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, nil
	}
	code := wikiLang(lang)
	img, err := c.lookupIn(ctx, keyword, code)
	if err != nil || img != nil || code == "en" {
		return img, err
	}
	return c.lookupIn(ctx, keyword, "en")
}

type queryResponse struct {
	Query struct {
		Pages map[string]struct {
			Title     string `json:"title"`
			FullURL   string `json:"fullurl"`
			Thumbnail struct {
				Source string `json:"source"`
			} `json:"thumbnail"`
		} `json:"pages"`
	} `json:"query"`
}

type summaryResponse struct {
	Title     string `json:"title"`
	Thumbnail struct {
		Source string `json:"source"`
	} `json:"thumbnail"`
	OriginalImage struct {
		Source string `json:"source"`
	} `json:"originalimage"`
	ContentURLs struct {
		Desktop struct {
			Page string `json:"page"`
		} `json:"desktop"`
	} `json:"content_urls"`
}

func (c *Client) lookupIn(ctx context.Context, keyword, code string) (*Image, error) {
	base := c.wikiBase(code)

	params := url.Values{}
	params.Set("action", "query")
	params.Set("format", "json")
	params.Set("generator", "search")
	params.Set("gsrsearch", keyword)
	params.Set("gsrlimit", "1")
	params.Set("utf8", "1")
	params.Set("redirects", "1")
	params.Set("prop", "pageimages|info")
	params.Set("inprop", "url")
	params.Set("pithumbsize", thumbSize)

	var search queryResponse
	if err := c.getJSON(ctx, base+"/w/api.php?"+params.Encode(), &search); err != nil {
		return nil, err
	}

	title := keyword
	pageURL := ""
	for _, page := range search.Query.Pages {
		if page.Title != "" {
			title = page.Title
		}
		pageURL = page.FullURL
		if page.Thumbnail.Source != "" {
			return &Image{URL: page.Thumbnail.Source, Title: title, PageURL: pageURL}, nil
		}
		break
	}

	var summary summaryResponse
	summaryURL := base + "/api/rest_v1/page/summary/" + url.PathEscape(strings.Join(strings.Fields(title), " "))
	if err := c.getJSON(ctx, summaryURL, &summary); err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	src := summary.Thumbnail.Source
	if src == "" {
		src = summary.OriginalImage.Source
	}
	if src == "" {
		return nil, nil
	}
	if summary.Title != "" {
		title = summary.Title
	}
	if p := summary.ContentURLs.Desktop.Page; p != "" {
		pageURL = p
	}
	return &Image{URL: src, Title: title, PageURL: pageURL}, nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("wikipedia error (status %d): %s", e.code, e.body)
}

func isNotFound(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.code == http.StatusNotFound
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return &statusError{code: resp.StatusCode, body: snippet}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *Client) wikiBase(code string) string {
	return strings.ReplaceAll(c.baseURL, "{lang}", code)
}

func wikiLang(lang string) string {
	code := strings.ToLower(strings.TrimSpace(lang))
	code, _, _ = strings.Cut(code, "-")
	if _, ok := wikiLanguages[code]; ok {
		return code
	}
	return "en"
}
