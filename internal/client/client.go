package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

const (
	userAgent = "frostwire-smartsearch/1.0"

	// maxDocumentBytes caps a downloaded metadata document. Real .torrent
	// files are far smaller; anything bigger is not what we asked for.
	maxDocumentBytes = 16 << 20
)

// ErrNotTorrent is returned when a URI does not lead to a torrent metadata
// document.
var ErrNotTorrent = errors.New("response is not a torrent file")

// MagnetError reports a details page that offers only a magnet link.
type MagnetError struct {
	URI string
}

func (e *MagnetError) Error() string {
	return "details page links to magnet " + e.URI
}

// Client downloads torrent metadata documents over HTTP.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
}

// New creates a client limited to reqPerSec requests per second, with each
// request bounded by timeout.
func New(reqPerSec float64, timeout time.Duration) *Client {
	if reqPerSec <= 0 {
		reqPerSec = 5.0
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(reqPerSec), 5),
	}
}

// Download fetches the .torrent document at uri into dir and returns the path
// of the written file. When uri serves an HTML details page, the first
// .torrent link on it is followed once; a page offering only a magnet link
// yields a *MagnetError.
func (c *Client) Download(ctx context.Context, uri, dir string) (string, error) {
	return c.download(ctx, uri, dir, true)
}

func (c *Client) download(ctx context.Context, uri, dir string, followPage bool) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", uri, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/x-bittorrent, text/html;q=0.5")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", uri, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d for %s", resp.StatusCode, uri)
	}

	body := bufio.NewReader(io.LimitReader(resp.Body, maxDocumentBytes))
	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if strings.Contains(contentType, "text/html") {
		if !followPage {
			return "", fmt.Errorf("%w: HTML at %s", ErrNotTorrent, uri)
		}
		link, err := findTorrentLink(body, uri)
		if err != nil {
			return "", err
		}
		if strings.HasPrefix(link, "magnet:") {
			return "", &MagnetError{URI: link}
		}
		return c.download(ctx, link, dir, false)
	}

	// Bencoded dictionaries always open with 'd'.
	first, err := body.Peek(1)
	if err != nil || first[0] != 'd' {
		return "", fmt.Errorf("%w: %s", ErrNotTorrent, uri)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating fetch directory: %w", err)
	}
	f, err := os.CreateTemp(dir, "fetch-*.torrent")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("writing %s: %w", f.Name(), err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// findTorrentLink scans a details page for a link to a .torrent file,
// falling back to a magnet link.
func findTorrentLink(r io.Reader, pageURL string) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parsing HTML: %w", err)
	}

	var torrentLink, magnetLink string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if torrentLink != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" {
			href := strings.TrimSpace(attr(n, "href"))
			lower := strings.ToLower(href)
			switch {
			case strings.HasPrefix(lower, "magnet:"):
				if magnetLink == "" {
					magnetLink = href
				}
			case strings.HasSuffix(pathOf(lower), ".torrent"):
				if resolved, err := resolveURL(pageURL, href); err == nil {
					torrentLink = resolved
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	switch {
	case torrentLink != "":
		return torrentLink, nil
	case magnetLink != "":
		return magnetLink, nil
	}
	return "", fmt.Errorf("%w: no torrent link on %s", ErrNotTorrent, pageURL)
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func resolveURL(base, ref string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	relURL, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(relURL).String(), nil
}

func pathOf(link string) string {
	parsed, err := url.Parse(link)
	if err != nil {
		return link
	}
	return parsed.Path
}
