package store

import (
	"context"

	"github.com/rotisserie/eris"
)

type seedEntry struct {
	key      string
	name     string
	family   string
	freq     string
	params   string
	keywords string
	role     string
	scope    string
}

// catalogSeed is the initial asset registry. Entries start inactive and
// become active once `activate` confirms the upstream answers with data.
var catalogSeed = []seedEntry{
	{"METRIC_US_NET_LIQUIDITY", "US Net Liquidity", "MACRO_SERIES", "MONTHLY",
		`{"series": ["WALCL", "WTREGEN", "RRPONTSYD"]}`, "Fed, Liquidity, Balance Sheet", "JUDGMENT", "MACRO"},
	{"METRIC_US_ISM_PMI", "ISM Manufacturing PMI", "MACRO_SERIES", "MONTHLY",
		`{"series": ["IPMAN"]}`, "Manufacturing, Economy", "JUDGMENT", "MACRO"},
	{"METRIC_US_CORE_PCE", "Core PCE (YoY)", "MACRO_SERIES", "MONTHLY",
		`{"series": ["PCEPILFE"]}`, "PCE, Inflation, Fed", "JUDGMENT", "MACRO"},
	{"METRIC_US_10Y_YIELD", "US 10Y Treasury Yield", "MACRO_SERIES", "DAILY",
		`{"series": ["DGS10"]}`, "Yield, Treasury, Bonds", "VALIDATION", "MACRO"},
	{"METRIC_JP_BOJ_ASSETS", "BOJ Total Assets", "MACRO_SERIES", "MONTHLY",
		`{"series": ["JPNASSETS"]}`, "BOJ, Assets, QE", "JUDGMENT", "MACRO"},
	{"METRIC_US_VIX", "VIX Index", "PRICE_BARS", "DAILY",
		`{"ticker": "^VIX"}`, "VIX, Volatility", "VALIDATION", "MACRO"},
	{"NVDA", "NVIDIA Corp", "PRICE_BARS", "DAILY",
		`{"ticker": "NVDA"}`, "NVIDIA, Semiconductors", "JUDGMENT", "MICRO"},
	{"SPY", "S&P 500 ETF", "PRICE_BARS", "DAILY",
		`{"ticker": "SPY"}`, "S&P 500, Index", "VALIDATION", "MACRO"},
	{"NEWS_US_TECH_SECTOR", "US Tech Sector News", "NEWS_FEED", "DAILY",
		`{"region": "US"}`, "semiconductor, AI chips, datacenter", "JUDGMENT", "MICRO"},
	{"NEWS_JP_MACRO", "Japan Macro News", "NEWS_FEED", "DAILY",
		`{"region": "JP"}`, "Bank of Japan, yen, inflation", "VALIDATION", "MACRO"},
}

// seedCatalog inserts the initial asset registry into an empty catalog.
// A populated catalog is left untouched.
func (s *Store) seedCatalog(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM data_catalog`).Scan(&count); err != nil {
		return eris.Wrap(err, "store: count catalog")
	}
	if count > 0 {
		return nil
	}

	for _, e := range catalogSeed {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO data_catalog
			 (catalog_key, entity_name, source_family, update_frequency,
			  config_params, search_keywords, role, scope, is_active)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)`,
			e.key, e.name, e.family, e.freq, e.params, e.keywords, e.role, e.scope)
		if err != nil {
			return eris.Wrapf(err, "store: seed catalog %s", e.key)
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO sync_watermarks (catalog_key) VALUES (?)`, e.key); err != nil {
			return eris.Wrapf(err, "store: seed watermark %s", e.key)
		}
	}
	return nil
}
