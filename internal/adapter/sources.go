package adapter

import (
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// SourceConfig describes one preferred news domain.
type SourceConfig struct {
	Enabled bool   `yaml:"enabled"`
	Region  string `yaml:"region"`
}

// sourcesFile is the on-disk shape of the news source registry.
type sourcesFile struct {
	Sources map[string]SourceConfig `yaml:"sources"`
}

// defaultSources backs the adapter when no sources file is configured.
var defaultSources = map[string]SourceConfig{
	"cnbc.com":              {Enabled: true, Region: "US"},
	"marketwatch.com":       {Enabled: true, Region: "US"},
	"finance.yahoo.com":     {Enabled: true, Region: "US"},
	"investing.com":         {Enabled: true, Region: "US"},
	"japantimes.co.jp":      {Enabled: true, Region: "JP"},
	"japantoday.com":        {Enabled: true, Region: "JP"},
	"english.kyodonews.net": {Enabled: true, Region: "JP"},
}

// LoadSources reads the preferred-domain registry from a YAML file,
// falling back to the built-in defaults when the file is absent.
func LoadSources(path string) (map[string]SourceConfig, error) {
	if path == "" {
		return defaultSources, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			zap.L().Debug("news sources file not found, using defaults",
				zap.String("path", path))
			return defaultSources, nil
		}
		return nil, eris.Wrapf(err, "adapter: read sources file %s", path)
	}

	var f sourcesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "adapter: parse sources file %s", path)
	}
	if len(f.Sources) == 0 {
		return defaultSources, nil
	}
	return f.Sources, nil
}

// domainsForRegion returns the enabled domains for a region, sorted for
// a stable query echo. Empty region means every enabled domain.
func domainsForRegion(sources map[string]SourceConfig, region string) []string {
	var domains []string
	for domain, cfg := range sources {
		if !cfg.Enabled {
			continue
		}
		if region != "" && !strings.EqualFold(cfg.Region, region) {
			continue
		}
		domains = append(domains, domain)
	}
	sort.Strings(domains)
	return domains
}
