package cleaner

import (
	"context"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/heimdall-intel/asis-cli/internal/resilience"
)

// minBodyLength is the floor below which an extraction is treated as
// empty and the description fallback kicks in.
const minBodyLength = 100

// Extractor fetches article HTML and reduces it to plaintext. Article
// hosts are arbitrary, so it keeps its own plain HTTP client rather
// than sharing the rate-limited API transport.
type Extractor struct {
	client  *http.Client
	timeout time.Duration
}

// NewExtractor creates an Extractor with the given per-article deadline.
func NewExtractor(timeout time.Duration) *Extractor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Extractor{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 5 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 5 * time.Second,
			},
		},
		timeout: timeout,
	}
}

// Extract fetches targetURL and returns the article plaintext. Retries
// once on a transient failure. An empty or too-short result is an
// error so the caller falls back to the description.
func (e *Extractor) Extract(ctx context.Context, targetURL string) (string, error) {
	retry := resilience.RetryConfig{
		MaxAttempts:    2,
		InitialBackoff: 500 * time.Millisecond,
	}
	return resilience.DoVal(ctx, retry, func(ctx context.Context) (string, error) {
		return e.fetch(ctx, targetURL)
	})
}

func (e *Extractor) fetch(ctx context.Context, targetURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return "", eris.Wrap(err, "extract: create request")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; HeimdallBot/1.0)")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", resilience.NewTransientError(eris.Wrap(err, "extract: fetch"), 0)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return "", resilience.NewTransientError(eris.Wrap(err, "extract: read body"), resp.StatusCode)
	}

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return "", resilience.NewTransientError(
			eris.Errorf("extract: status %d", resp.StatusCode), resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return "", resilience.NewPermanentError(
			eris.Errorf("extract: status %d", resp.StatusCode), resp.StatusCode)
	}

	text := stripHTML(string(body))
	if len(text) < minBodyLength {
		return "", resilience.NewPermanentError(eris.New("extract: empty article body"), 0)
	}
	return text, nil
}

// stripHTML removes scripts/styles/nav/footer, strips tags, decodes
// entities, and collapses whitespace into readable plaintext.
func stripHTML(html string) string {
	for _, tag := range []string{"script", "style", "nav", "footer", "header", "aside"} {
		re := regexp.MustCompile(`(?is)<` + tag + `[^>]*>.*?</` + tag + `>`)
		html = re.ReplaceAllString(html, "")
	}

	tagRe := regexp.MustCompile(`<[^>]+>`)
	html = tagRe.ReplaceAllString(html, " ")

	r := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	)
	html = r.Replace(html)

	spaceRe := regexp.MustCompile(`[ \t]+`)
	html = spaceRe.ReplaceAllString(html, " ")

	nlRe := regexp.MustCompile(`\n{3,}`)
	html = nlRe.ReplaceAllString(html, "\n\n")

	return strings.TrimSpace(html)
}
