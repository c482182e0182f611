package cleaner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heimdall-intel/asis-cli/internal/model"
)

func newsRecord(t *testing.T, env model.RawEnvelope) model.RawRecord {
	t.Helper()
	payload, err := json.Marshal(env)
	require.NoError(t, err)
	return model.RawRecord{
		RequestHash:  "h",
		CatalogKey:   env.CatalogKey,
		SourceFamily: model.FamilyNews,
		RawPayload:   payload,
		InsertedAt:   time.Now().UTC(),
	}
}

func testNewsCleaner() *NewsFeedCleaner {
	return NewNewsFeedCleaner(NewExtractor(time.Second), 4)
}

const articleHTML = `<html><head><title>Chipmaker beats estimates</title>
<style>body { color: red }</style></head>
<body><nav>Home | News</nav>
<p>The company reported quarterly revenue well above analyst expectations,
driven by sustained demand for datacenter accelerators. Management guided
higher for the coming quarter and announced an expanded buyback program.</p>
<footer>Copyright</footer></body></html>`

func TestNewsClean_ExtractsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	rec := newsRecord(t, model.RawEnvelope{
		CatalogKey:   "NEWS_US_TECH_SECTOR",
		SourceFamily: model.FamilyNews,
		Articles: []model.NewsArticle{{
			Title:       "Chipmaker beats estimates",
			Description: "Short summary.",
			URL:         srv.URL + "/article",
			PublishedAt: "2025-01-02T12:39:55Z",
			Author:      "A. Writer",
			SourceName:  "CNBC",
		}},
	})

	batch, skipped, err := testNewsCleaner().Clean(context.Background(), rec)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, batch.News, 1)

	row := batch.News[0]
	require.NotNil(t, row.Body)
	assert.Contains(t, *row.Body, "datacenter accelerators")
	assert.NotContains(t, *row.Body, "<p>")
	assert.NotContains(t, *row.Body, "Home | News")
	require.NotNil(t, row.PublishedAt)
	assert.Equal(t, 2025, row.PublishedAt.Year())
	assert.Equal(t, Fingerprint(srv.URL+"/article"), row.Fingerprint)
}

func TestNewsClean_FallsBackToDescription(t *testing.T) {
	// Reachable page whose HTML yields (near-)empty extracted text.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><script>void(0)</script></body></html>`))
	}))
	defer srv.Close()

	desc := "The description fallback string."
	rec := newsRecord(t, model.RawEnvelope{
		CatalogKey: "NEWS_US_TECH_SECTOR",
		Articles: []model.NewsArticle{{
			Title:       "Title",
			Description: desc,
			URL:         srv.URL + "/thin",
		}},
	})

	batch, _, err := testNewsCleaner().Clean(context.Background(), rec)
	require.NoError(t, err)
	require.Len(t, batch.News, 1)
	require.NotNil(t, batch.News[0].Body)
	assert.Equal(t, desc, *batch.News[0].Body)
}

func TestNewsClean_UnreachableURLStillEmitsRow(t *testing.T) {
	rec := newsRecord(t, model.RawEnvelope{
		CatalogKey: "NEWS_US_TECH_SECTOR",
		Articles: []model.NewsArticle{{
			Title: "Title only",
			URL:   "http://127.0.0.1:1/unreachable",
		}},
	})

	batch, _, err := testNewsCleaner().Clean(context.Background(), rec)
	require.NoError(t, err)
	require.Len(t, batch.News, 1)
	assert.Nil(t, batch.News[0].Body, "no body and no description leaves body null")
}

func TestNewsClean_ErrorEnvelopeSkipped(t *testing.T) {
	rec := newsRecord(t, model.RawEnvelope{
		CatalogKey: "NEWS_US_TECH_SECTOR",
		Error:      "rate_limited",
	})

	batch, skipped, err := testNewsCleaner().Clean(context.Background(), rec)
	require.NoError(t, err)
	assert.Zero(t, batch.Len())
	assert.Equal(t, 1, skipped)
}

func TestNewsClean_DropsArticlesWithoutTitleOrURL(t *testing.T) {
	rec := newsRecord(t, model.RawEnvelope{
		CatalogKey: "K",
		Articles: []model.NewsArticle{
			{Title: "", URL: "https://example.com/a"},
			{Title: "No URL", URL: ""},
		},
	})

	batch, skipped, err := testNewsCleaner().Clean(context.Background(), rec)
	require.NoError(t, err)
	assert.Zero(t, batch.Len())
	assert.Equal(t, 2, skipped)
}

func TestNewsClean_ConcurrentExtractionAwaitsAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	articles := make([]model.NewsArticle, 8)
	for idx := range articles {
		articles[idx] = model.NewsArticle{
			Title: "Article",
			URL:   srv.URL + "/" + string(rune('a'+idx)),
		}
	}
	rec := newsRecord(t, model.RawEnvelope{CatalogKey: "K", Articles: articles})

	batch, _, err := testNewsCleaner().Clean(context.Background(), rec)
	require.NoError(t, err)
	require.Len(t, batch.News, 8)
	for _, row := range batch.News {
		require.NotNil(t, row.Body, "every extraction must finish before Clean returns")
	}
}

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases host", "https://CNBC.com/Article", "https://cnbc.com/Article"},
		{"strips fragment", "https://cnbc.com/a#section", "https://cnbc.com/a"},
		{"strips trailing slash", "https://cnbc.com/a/", "https://cnbc.com/a"},
		{"drops utm params", "https://cnbc.com/a?utm_source=x&utm_medium=y", "https://cnbc.com/a"},
		{"keeps real params", "https://cnbc.com/a?id=7", "https://cnbc.com/a?id=7"},
		{"drops fbclid", "https://cnbc.com/a?fbclid=abc&id=7", "https://cnbc.com/a?id=7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalURL(tt.in))
		})
	}
}

func TestFingerprint_TrackingVariantsCollapse(t *testing.T) {
	a := Fingerprint("https://cnbc.com/story?utm_source=tw")
	b := Fingerprint("https://CNBC.com/story/")
	assert.Equal(t, a, b)
	assert.Len(t, a, 32, "md5 hex digest")

	c := Fingerprint("https://cnbc.com/other-story")
	assert.NotEqual(t, a, c)
}

func TestStripHTML(t *testing.T) {
	got := stripHTML(articleHTML)
	assert.Contains(t, got, "quarterly revenue")
	assert.NotContains(t, got, "color: red")
	assert.NotContains(t, got, "Copyright")
	assert.False(t, strings.Contains(got, "<"))
}

func TestParsePublished(t *testing.T) {
	ts := parsePublished("2025-01-02T12:39:55Z")
	require.NotNil(t, ts)
	assert.Equal(t, time.January, ts.Month())

	assert.Nil(t, parsePublished(""))
	assert.Nil(t, parsePublished("garbage"))
}
