// Package oracle adapts the third-party Weblio dictionary into a simple
// existence check. Lookups are network-bound and may fail; callers decide
// what a failed lookup means for gameplay.
package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Oracle answers whether a word exists in the reference dictionary.
type Oracle interface {
	Exists(ctx context.Context, word string) (bool, error)
}

type WeblioOracle struct {
	logger *slog.Logger
	client *http.Client

	baseURL        string
	notFoundMarker string
}

func NewWeblioOracle(logger *slog.Logger, baseURL, notFoundMarker string, timeout time.Duration) *WeblioOracle {
	return &WeblioOracle{
		logger: logger,
		client: &http.Client{Timeout: timeout},

		baseURL:        baseURL,
		notFoundMarker: notFoundMarker,
	}
}

// Exists fetches the dictionary page for the word and checks it for the
// not-found marker. A page without the marker means the word exists.
func (that *WeblioOracle) Exists(ctx context.Context, word string) (bool, error) {
	log := that.logger.With("method", "Exists", "word", word)

	lookupURL := fmt.Sprintf("%s/content/%s", that.baseURL, url.PathEscape(word))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
	if err != nil {
		return false, fmt.Errorf("failed to build dictionary request: %w", err)
	}

	resp, err := that.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to reach dictionary: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("dictionary returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return false, fmt.Errorf("failed to parse dictionary page: %w", err)
	}

	found := !strings.Contains(doc.Text(), that.notFoundMarker)
	log.Debug("dictionary lookup finished", "found", found)

	return found, nil
}
