// Package source resolves a user-supplied video source into a stable key and
// a display title.
package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
)

// Kind distinguishes local files from remote URLs.
type Kind string

const (
	Local  Kind = "local"
	Remote Kind = "remote"
)

// Info describes a video source.
type Info struct {
	Source string
	Title  string
	Kind   Kind
}

// Read content with size limit to prevent OOM from untrusted URLs
const maxBodySize = 10 * 1024 * 1024

// Describer resolves sources. The zero value uses a default HTTP client and
// the default logger.
type Describer struct {
	Client *http.Client
	Logger *slog.Logger
}

// IsRemote reports whether src is an http(s) URL.
func IsRemote(src string) bool {
	u, err := url.Parse(strings.TrimSpace(src))
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Describe returns the canonical source key and a title. Local files must
// exist and are keyed by absolute path; their title is the file name.
// Remote titles come from the page; when the page cannot be fetched the URL
// itself is used and a warning is logged.
func (d *Describer) Describe(ctx context.Context, src string) (Info, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return Info{}, fmt.Errorf("source must be non-empty")
	}
	if IsRemote(src) {
		title, err := d.fetchTitle(ctx, src)
		if err != nil {
			if ctx.Err() != nil {
				return Info{}, ctx.Err()
			}
			d.logger().Warn("could not fetch remote title", slog.String("url", src), slog.Any("error", err))
			title = src
		}
		return Info{Source: src, Title: title, Kind: Remote}, nil
	}

	abs, err := filepath.Abs(src)
	if err != nil {
		return Info{}, err
	}
	st, err := os.Stat(abs)
	if err != nil {
		return Info{}, fmt.Errorf("source %s: %w", src, err)
	}
	if st.IsDir() {
		return Info{}, fmt.Errorf("source %s is a directory", src)
	}
	return Info{Source: abs, Title: filepath.Base(abs), Kind: Local}, nil
}

func (d *Describer) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d *Describer) fetchTitle(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	// Video sites block the default Go agent.
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")

	client := d.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	body = SanitizeRuby(body)

	parsedURL, _ := url.Parse(rawURL)
	article, err := readability.FromReader(bytes.NewReader(body), parsedURL)
	if err != nil {
		return "", fmt.Errorf("extract title: %w", err)
	}
	title := strings.TrimSpace(article.Title)
	if title == "" {
		return "", fmt.Errorf("page at %s has no title", rawURL)
	}
	return title, nil
}

var (
	// (?s) allows dot to match newlines
	// (?i) makes it case-insensitive
	reRT = regexp.MustCompile(`(?si)<rt\b[^>]*>.*?</rt>`)
	reRP = regexp.MustCompile(`(?si)<rp\b[^>]*>.*?</rp>`)
)

// SanitizeRuby removes ruby annotations (<rt>, <rp>) from HTML so pinyin
// written over characters does not leak into extracted text.
func SanitizeRuby(content []byte) []byte {
	cleaned := reRT.ReplaceAll(content, nil)
	return reRP.ReplaceAll(cleaned, nil)
}
