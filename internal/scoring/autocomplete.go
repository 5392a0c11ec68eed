package scoring

import (
	"context"
	"crypto/md5" //nolint:gosec // cache keys only
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultAutocompleteURL is Google's public suggestion endpoint.
const DefaultAutocompleteURL = "https://suggestqueries.google.com/complete/search"

// Suggester reports how many search suggestions a query has.
type Suggester interface {
	Count(ctx context.Context, query string) int
}

// Autocomplete counts Google search suggestions, caching successful lookups.
type Autocomplete struct {
	client   *resty.Client
	endpoint string

	mu    sync.Mutex
	cache map[string]int
}

// NewAutocomplete builds the client; an empty endpoint uses DefaultAutocompleteURL.
func NewAutocomplete(client *resty.Client, endpoint string) *Autocomplete {
	if client == nil {
		client = resty.New().SetTimeout(5 * time.Second)
	}
	if endpoint == "" {
		endpoint = DefaultAutocompleteURL
	}
	return &Autocomplete{client: client, endpoint: endpoint, cache: make(map[string]int)}
}

// Count returns the number of suggestions (0-10). Any failure counts as zero and is not cached.
func (a *Autocomplete) Count(ctx context.Context, query string) int {
	sum := md5.Sum([]byte(query)) //nolint:gosec // cache keys only
	key := hex.EncodeToString(sum[:])

	a.mu.Lock()
	if n, ok := a.cache[key]; ok {
		a.mu.Unlock()
		return n
	}
	a.mu.Unlock()

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", "Mozilla/5.0").
		SetQueryParams(map[string]string{"client": "firefox", "hl": "ja", "q": query}).
		Get(a.endpoint)
	if err != nil || resp.StatusCode() != 200 {
		return 0
	}
	var payload []json.RawMessage
	if err := json.Unmarshal(resp.Body(), &payload); err != nil || len(payload) < 2 {
		return 0
	}
	var suggestions []any
	if err := json.Unmarshal(payload[1], &suggestions); err != nil {
		return 0
	}
	n := len(suggestions)

	a.mu.Lock()
	a.cache[key] = n
	a.mu.Unlock()
	return n
}
