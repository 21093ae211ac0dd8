package notion

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers"
)

const (
	ProviderID = "notion"
	AuthURL    = "https://api.notion.com/v1/oauth/authorize"
	TokenURL   = "https://api.notion.com/v1/oauth/token"
	SearchURL  = "https://api.notion.com/v1/search"

	// APIVersion pins the workspace API contract; search result shapes
	// differ between versions.
	APIVersion = "2022-06-28"

	searchPageSize = 100
)

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthURL      string
	TokenURL     string
	SearchURL    string
	TokenTTL     time.Duration
	Now          func() time.Time
	HTTPClient   core.HTTPDoer
}

func DefaultConfig() Config {
	return Config{
		AuthURL:   AuthURL,
		TokenURL:  TokenURL,
		SearchURL: SearchURL,
	}
}

// Provider integrates Notion workspaces. Notion has no scope vocabulary: the
// workspace member picks pages during authorization, and search returns
// whatever the integration was granted. Access tokens do not expire and no
// refresh token is issued.
type Provider struct {
	*providers.OAuth2Adapter

	searchURL string
	api       *providers.APIClient
}

func New(cfg Config) (*Provider, error) {
	defaults := DefaultConfig()
	if strings.TrimSpace(cfg.AuthURL) == "" {
		cfg.AuthURL = defaults.AuthURL
	}
	if strings.TrimSpace(cfg.TokenURL) == "" {
		cfg.TokenURL = defaults.TokenURL
	}
	if strings.TrimSpace(cfg.SearchURL) == "" {
		cfg.SearchURL = defaults.SearchURL
	}

	adapter, err := providers.NewOAuth2Adapter(providers.OAuth2Config{
		ID:           ProviderID,
		AuthURL:      cfg.AuthURL,
		TokenURL:     cfg.TokenURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		// The token endpoint wants a JSON document with basic auth.
		TokenRequestJSON: true,
		RedirectURI:      cfg.RedirectURI,
		ExtraAuthParams:  map[string]string{"owner": "user"},
		TokenTTL:         cfg.TokenTTL,
		Now:              cfg.Now,
		HTTPClient:       cfg.HTTPClient,
	})
	if err != nil {
		return nil, err
	}

	return &Provider{
		OAuth2Adapter: adapter,
		searchURL:     cfg.SearchURL,
		api: &providers.APIClient{
			ProviderID: ProviderID,
			HTTPClient: adapter.HTTPClient(),
		},
	}, nil
}

// FetchItems pages through the workspace search endpoint, following the
// cursor until has_more goes false.
func (p *Provider) FetchItems(ctx context.Context, record core.TokenRecord) ([]core.RawRecord, error) {
	header := http.Header{}
	header.Set("Notion-Version", APIVersion)

	items := []core.RawRecord{}
	cursor := ""
	for {
		body := map[string]any{"page_size": searchPageSize}
		if cursor != "" {
			body["start_cursor"] = cursor
		}

		page, err := p.api.PostJSON(ctx, p.searchURL, body, header, record.AccessToken)
		if err != nil {
			return nil, err
		}
		items = append(items, providers.RawRecords(page, "results")...)

		hasMore, _ := page["has_more"].(bool)
		cursor = providers.RawString(page, "next_cursor")
		if !hasMore || cursor == "" {
			return items, nil
		}
	}
}

// Normalize maps a search result to the canonical shape. The "object" field
// (page or database) becomes the item type; the title is dug out of whichever
// shape that object carries it in.
func (p *Provider) Normalize(raw core.RawRecord) core.IntegrationItem {
	objectType := providers.RawString(raw, "object")
	if objectType == "" {
		objectType = "page"
	}

	metadata := map[string]string{}
	providers.SetMeta(metadata, "url", providers.RawString(raw, "url"))
	providers.SetMeta(metadata, "created_at", providers.RawString(raw, "created_time"))
	providers.SetMeta(metadata, "updated_at", providers.RawString(raw, "last_edited_time"))
	providers.SetMeta(metadata, "parent_type", providers.RawString(providers.RawMap(raw, "parent"), "type"))
	if archived, ok := raw["archived"].(bool); ok && archived {
		metadata["archived"] = "true"
	}

	return core.IntegrationItem{
		ID:       providers.RawString(raw, "id"),
		Name:     extractTitle(raw, objectType),
		Type:     objectType,
		Metadata: metadata,
	}
}

// extractTitle resolves the display title. Databases carry a top-level title
// array; pages bury theirs inside the property whose type is "title".
func extractTitle(raw core.RawRecord, objectType string) string {
	if objectType == "database" {
		if title := plainText(providers.RawSlice(raw, "title")); title != "" {
			return title
		}
	}
	// Iterate property names in order so duplicate title-typed properties
	// resolve the same way every time.
	props := providers.RawMap(raw, "properties")
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		property, ok := props[name].(map[string]any)
		if !ok {
			continue
		}
		if providers.RawString(property, "type") != "title" {
			continue
		}
		if title := plainText(providers.RawSlice(property, "title")); title != "" {
			return title
		}
	}
	return ""
}

func plainText(fragments []any) string {
	parts := make([]string, 0, len(fragments))
	for _, fragment := range fragments {
		record, ok := fragment.(map[string]any)
		if !ok {
			continue
		}
		if text := providers.RawString(record, "plain_text"); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, ""))
}

// DefaultScopes is empty: Notion grants are chosen in the consent screen,
// not requested by scope.
func (p *Provider) DefaultScopes() []string {
	return []string{}
}

var _ core.Provider = (*Provider)(nil)
