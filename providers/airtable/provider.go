package airtable

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers"
)

const (
	ProviderID = "airtable"
	AuthURL    = "https://airtable.com/oauth2/v1/authorize"
	TokenURL   = "https://airtable.com/oauth2/v1/token"
	MetaURL    = "https://api.airtable.com/v0/meta"
)

type Config struct {
	ClientID      string
	ClientSecret  string
	RedirectURI   string
	AuthURL       string
	TokenURL      string
	MetaURL       string
	DefaultScopes []string
	TokenTTL      time.Duration
	Now           func() time.Time
	HTTPClient    core.HTTPDoer
}

func DefaultConfig() Config {
	return Config{
		AuthURL:       AuthURL,
		TokenURL:      TokenURL,
		MetaURL:       MetaURL,
		DefaultScopes: []string{"data.records:read", "schema.bases:read"},
	}
}

// Provider integrates Airtable workspaces through the metadata API: every
// accessible base becomes one item, and every table inside it another. Table
// items point back to their base via metadata.
type Provider struct {
	*providers.OAuth2Adapter

	metaURL string
	api     *providers.APIClient
}

func New(cfg Config) (*Provider, error) {
	defaults := DefaultConfig()
	if strings.TrimSpace(cfg.AuthURL) == "" {
		cfg.AuthURL = defaults.AuthURL
	}
	if strings.TrimSpace(cfg.TokenURL) == "" {
		cfg.TokenURL = defaults.TokenURL
	}
	if strings.TrimSpace(cfg.MetaURL) == "" {
		cfg.MetaURL = defaults.MetaURL
	}
	if len(cfg.DefaultScopes) == 0 {
		cfg.DefaultScopes = defaults.DefaultScopes
	}

	adapter, err := providers.NewOAuth2Adapter(providers.OAuth2Config{
		ID:            ProviderID,
		AuthURL:       cfg.AuthURL,
		TokenURL:      cfg.TokenURL,
		ClientID:      cfg.ClientID,
		ClientSecret:  cfg.ClientSecret,
		RedirectURI:   cfg.RedirectURI,
		DefaultScopes: cfg.DefaultScopes,
		TokenTTL:      cfg.TokenTTL,
		Now:           cfg.Now,
		HTTPClient:    cfg.HTTPClient,
	})
	if err != nil {
		return nil, err
	}

	return &Provider{
		OAuth2Adapter: adapter,
		metaURL:       strings.TrimRight(cfg.MetaURL, "/"),
		api: &providers.APIClient{
			ProviderID: ProviderID,
			HTTPClient: adapter.HTTPClient(),
		},
	}, nil
}

// FetchItems lists accessible bases and, for each, its table schemas. Raw
// records are tagged with an "airtable_kind" discriminator so normalization
// stays a pure per-record function.
func (p *Provider) FetchItems(ctx context.Context, record core.TokenRecord) ([]core.RawRecord, error) {
	page, err := p.api.GetJSON(ctx, p.metaURL+"/bases", nil, nil, record.AccessToken)
	if err != nil {
		return nil, err
	}

	items := []core.RawRecord{}
	for _, base := range providers.RawRecords(page, "bases") {
		base["airtable_kind"] = "base"
		items = append(items, base)

		baseID := providers.RawString(base, "id")
		if baseID == "" {
			continue
		}
		schema, err := p.api.GetJSON(ctx, p.metaURL+"/bases/"+baseID+"/tables", nil, nil, record.AccessToken)
		if err != nil {
			return nil, err
		}
		for _, table := range providers.RawRecords(schema, "tables") {
			table["airtable_kind"] = "table"
			table["airtable_base_id"] = baseID
			table["airtable_base_name"] = providers.RawString(base, "name")
			items = append(items, table)
		}
	}
	return items, nil
}

// Normalize maps a tagged base or table record to the canonical shape.
func (p *Provider) Normalize(raw core.RawRecord) core.IntegrationItem {
	kind := providers.RawString(raw, "airtable_kind")
	if kind == "" {
		kind = "base"
	}

	metadata := map[string]string{}
	switch kind {
	case "table":
		providers.SetMeta(metadata, "base_id", providers.RawString(raw, "airtable_base_id"))
		providers.SetMeta(metadata, "base_name", providers.RawString(raw, "airtable_base_name"))
		providers.SetMeta(metadata, "primary_field_id", providers.RawString(raw, "primaryFieldId"))
		providers.SetMeta(metadata, "description", providers.RawString(raw, "description"))
	default:
		providers.SetMeta(metadata, "permission_level", providers.RawString(raw, "permissionLevel"))
	}

	return core.IntegrationItem{
		ID:       providers.RawString(raw, "id"),
		Name:     providers.RawString(raw, "name"),
		Type:     kind,
		Metadata: metadata,
	}
}

var _ core.Provider = (*Provider)(nil)
