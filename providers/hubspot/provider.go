package hubspot

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers"
)

const (
	ProviderID  = "hubspot"
	AuthURL     = "https://app.hubspot.com/oauth/authorize"
	TokenURL    = "https://api.hubapi.com/oauth/v1/token"
	ContactsURL = "https://api.hubapi.com/crm/v3/objects/contacts"
)

// contactProperties is the property set requested per contact. The CRM API
// returns only what is asked for, so normalization depends on this list.
var contactProperties = []string{
	"email", "firstname", "lastname", "phone",
	"company", "website", "address", "city",
	"state", "country", "createdate", "lastmodifieddate",
	"jobtitle", "lifecyclestage", "lead_status",
	"mobilephone", "industry",
}

type Config struct {
	ClientID      string
	ClientSecret  string
	RedirectURI   string
	AuthURL       string
	TokenURL      string
	ContactsURL   string
	DefaultScopes []string
	TokenTTL      time.Duration
	Now           func() time.Time
	HTTPClient    core.HTTPDoer
}

func DefaultConfig() Config {
	return Config{
		AuthURL:       AuthURL,
		TokenURL:      TokenURL,
		ContactsURL:   ContactsURL,
		DefaultScopes: []string{"crm.objects.contacts.read", "crm.objects.contacts.write"},
	}
}

// Provider integrates the HubSpot CRM: OAuth against app.hubspot.com, data
// from the v3 contacts endpoint, normalized items of type "contact".
type Provider struct {
	*providers.OAuth2Adapter

	contactsURL string
	api         *providers.APIClient
}

func New(cfg Config) (*Provider, error) {
	defaults := DefaultConfig()
	if strings.TrimSpace(cfg.AuthURL) == "" {
		cfg.AuthURL = defaults.AuthURL
	}
	if strings.TrimSpace(cfg.TokenURL) == "" {
		cfg.TokenURL = defaults.TokenURL
	}
	if strings.TrimSpace(cfg.ContactsURL) == "" {
		cfg.ContactsURL = defaults.ContactsURL
	}
	if len(cfg.DefaultScopes) == 0 {
		cfg.DefaultScopes = defaults.DefaultScopes
	}

	adapter, err := providers.NewOAuth2Adapter(providers.OAuth2Config{
		ID:           ProviderID,
		AuthURL:      cfg.AuthURL,
		TokenURL:     cfg.TokenURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		// HubSpot's token endpoint rejects basic auth.
		ClientSecretInBody: true,
		RedirectURI:        cfg.RedirectURI,
		DefaultScopes:      cfg.DefaultScopes,
		TokenTTL:           cfg.TokenTTL,
		Now:                cfg.Now,
		HTTPClient:         cfg.HTTPClient,
	})
	if err != nil {
		return nil, err
	}

	return &Provider{
		OAuth2Adapter: adapter,
		contactsURL:   cfg.ContactsURL,
		api: &providers.APIClient{
			ProviderID: ProviderID,
			HTTPClient: adapter.HTTPClient(),
		},
	}, nil
}

// FetchItems pages through non-archived CRM contacts with the requested
// property set, following the paging cursor until exhausted.
func (p *Provider) FetchItems(ctx context.Context, record core.TokenRecord) ([]core.RawRecord, error) {
	contacts := []core.RawRecord{}
	after := ""
	for {
		query := url.Values{}
		for _, property := range contactProperties {
			query.Add("properties", property)
		}
		query.Set("limit", "100")
		query.Set("archived", "false")
		if after != "" {
			query.Set("after", after)
		}

		page, err := p.api.GetJSON(ctx, p.contactsURL, query, nil, record.AccessToken)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, providers.RawRecords(page, "results")...)

		after = providers.RawString(providers.RawMap(providers.RawMap(page, "paging"), "next"), "after")
		if after == "" {
			return contacts, nil
		}
	}
}

// Normalize maps one CRM contact to the canonical item shape. The contact id
// becomes the item id; the display name joins first and last names.
func (p *Provider) Normalize(raw core.RawRecord) core.IntegrationItem {
	props := providers.RawMap(raw, "properties")

	name := strings.TrimSpace(providers.RawString(props, "firstname") + " " + providers.RawString(props, "lastname"))

	metadata := map[string]string{}
	providers.SetMeta(metadata, "company", providers.RawString(props, "company"))
	providers.SetMeta(metadata, "website", providers.RawString(props, "website"))
	providers.SetMeta(metadata, "address", providers.RawString(props, "address"))
	providers.SetMeta(metadata, "city", providers.RawString(props, "city"))
	providers.SetMeta(metadata, "state", providers.RawString(props, "state"))
	providers.SetMeta(metadata, "country", providers.RawString(props, "country"))
	providers.SetMeta(metadata, "phone", providers.RawString(props, "phone"))
	providers.SetMeta(metadata, "mobile_phone", providers.RawString(props, "mobilephone"))
	providers.SetMeta(metadata, "job_title", providers.RawString(props, "jobtitle"))
	providers.SetMeta(metadata, "industry", providers.RawString(props, "industry"))
	providers.SetMeta(metadata, "lifecycle_stage", providers.RawString(props, "lifecyclestage"))
	providers.SetMeta(metadata, "lead_status", providers.RawString(props, "lead_status"))
	providers.SetMeta(metadata, "created_at", providers.RawString(props, "createdate"))
	providers.SetMeta(metadata, "updated_at", providers.RawString(props, "lastmodifieddate"))

	return core.IntegrationItem{
		ID:       providers.RawString(raw, "id"),
		Name:     name,
		Email:    providers.RawString(props, "email"),
		Type:     "contact",
		Metadata: metadata,
	}
}

var _ core.Provider = (*Provider)(nil)
