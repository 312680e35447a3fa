// Package pricing holds a small embedded table of per-model USD pricing
// used to estimate session cost. The embedded table can be overridden by
// a user-supplied file, and lookup falls back from an exact match to the
// longest prefix so dated model ids still resolve.
package pricing

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "embed"

	"github.com/socratic-council/council/pkg/log"
)

//go:embed pricing.json
var embeddedPricing []byte

// Price is the per-million-token cost of one model.
type Price struct {
	Model            string  `json:"model"`
	InputPerMillion  float64 `json:"input_per_million"`
	OutputPerMillion float64 `json:"output_per_million"`
}

type registry struct {
	mu     sync.RWMutex
	prices map[string]Price
}

var reg = &registry{prices: make(map[string]Price)}
var once sync.Once

func ensureLoaded() {
	once.Do(func() {
		reg.mu.Lock()
		defer reg.mu.Unlock()

		var list []Price
		if err := json.Unmarshal(embeddedPricing, &list); err != nil {
			log.WithError(err).Error("pricing: failed to parse embedded pricing table")
		}
		for _, p := range list {
			reg.prices[strings.ToLower(p.Model)] = p
		}

		if home, err := os.UserHomeDir(); err == nil {
			overridePath := filepath.Join(home, ".socratic-council", "pricing.json")
			if data, err := os.ReadFile(overridePath); err == nil {
				var overrides []Price
				if err := json.Unmarshal(data, &overrides); err != nil {
					log.WithError(err).WithField("path", overridePath).Warn("pricing: ignoring malformed override file")
				} else {
					for _, p := range overrides {
						reg.prices[strings.ToLower(p.Model)] = p
					}
				}
			}
		}
	})
}

// Lookup resolves a model name to its price. It tries an exact
// case-insensitive match first, then a prefix match against known model
// ids (provider SDKs frequently append date suffixes, e.g.
// "claude-opus-4-20250514" against a table entry of "claude-opus-4"), and
// reports found=false when nothing matches rather than fabricating a
// price.
func Lookup(model string) (Price, bool) {
	ensureLoaded()
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	key := strings.ToLower(model)
	if p, ok := reg.prices[key]; ok {
		return p, true
	}
	var best Price
	bestLen := 0
	for k, p := range reg.prices {
		if strings.HasPrefix(key, k) && len(k) > bestLen {
			best = p
			bestLen = len(k)
		}
	}
	if bestLen > 0 {
		return best, true
	}
	return Price{}, false
}
