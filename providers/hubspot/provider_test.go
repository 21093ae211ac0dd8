package hubspot

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers/devkit"
)

func newTestProvider(t *testing.T, doer core.HTTPDoer) *Provider {
	t.Helper()
	provider, err := New(Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "https://app.test/callback",
		HTTPClient:   doer,
	})
	if err != nil {
		t.Fatalf("expected provider construction to succeed, got %v", err)
	}
	return provider
}

func fetchRecord() core.TokenRecord {
	return core.TokenRecord{
		ProviderID:  ProviderID,
		Owner:       core.OwnerRef{UserID: "user-1"},
		AccessToken: "access-token",
	}
}

func TestFetchItemsFollowsPaging(t *testing.T) {
	doer := devkit.NewFakeHTTPDoer(
		devkit.HTTPScript{Body: `{
			"results": [
				{"id": "1", "properties": {"firstname": "Ada", "lastname": "Lovelace"}},
				{"id": "2", "properties": {"firstname": "Grace", "lastname": "Hopper"}}
			],
			"paging": {"next": {"after": "cursor-2"}}
		}`},
		devkit.HTTPScript{Body: `{
			"results": [
				{"id": "3", "properties": {"firstname": "Edsger", "lastname": "Dijkstra"}}
			]
		}`},
	)
	provider := newTestProvider(t, doer)

	raw, err := provider.FetchItems(context.Background(), fetchRecord())
	if err != nil {
		t.Fatalf("expected fetch to succeed, got %v", err)
	}
	if len(raw) != 3 {
		t.Fatalf("expected 3 contacts across pages, got %d", len(raw))
	}

	requests := doer.Requests()
	if len(requests) != 2 {
		t.Fatalf("expected 2 page requests, got %d", len(requests))
	}

	first, err := url.Parse(requests[0].URL)
	if err != nil {
		t.Fatalf("expected parseable URL, got %v", err)
	}
	query := first.Query()
	if query.Get("limit") != "100" || query.Get("archived") != "false" {
		t.Fatalf("expected limit and archived filters, got %v", query)
	}
	if len(query["properties"]) != len(contactProperties) {
		t.Fatalf("expected %d requested properties, got %d", len(contactProperties), len(query["properties"]))
	}
	if query.Get("after") != "" {
		t.Fatal("expected no cursor on the first page")
	}

	second, err := url.Parse(requests[1].URL)
	if err != nil {
		t.Fatalf("expected parseable URL, got %v", err)
	}
	if second.Query().Get("after") != "cursor-2" {
		t.Fatalf("expected paging cursor on the second page, got %q", second.Query().Get("after"))
	}

	if auth := requests[0].Header.Get("Authorization"); auth != "Bearer access-token" {
		t.Fatalf("expected bearer auth, got %q", auth)
	}
}

func TestFetchItemsUnauthorized(t *testing.T) {
	doer := devkit.NewFakeHTTPDoer(devkit.HTTPScript{Status: 401, Body: `{"message":"expired"}`})
	provider := newTestProvider(t, doer)

	_, err := provider.FetchItems(context.Background(), fetchRecord())
	if !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestNormalizeContact(t *testing.T) {
	provider := newTestProvider(t, devkit.NewFakeHTTPDoer())

	raw := core.RawRecord{
		"id": "601",
		"properties": map[string]any{
			"firstname":        "Ada",
			"lastname":         "Lovelace",
			"email":            "ada@example.test",
			"company":          "Analytical Engines",
			"phone":            "+44 20 0000 0000",
			"city":             "London",
			"lifecyclestage":   "customer",
			"jobtitle":         "Mathematician",
			"createdate":       "2026-01-01T00:00:00Z",
			"lastmodifieddate": "2026-02-01T00:00:00Z",
		},
	}

	item := provider.Normalize(raw)
	if item.ID != "601" {
		t.Fatalf("expected contact id preserved, got %q", item.ID)
	}
	if item.Type != "contact" {
		t.Fatalf("expected type contact, got %q", item.Type)
	}
	if item.Name != "Ada Lovelace" {
		t.Fatalf("expected joined name, got %q", item.Name)
	}
	if item.Email != "ada@example.test" {
		t.Fatalf("expected email, got %q", item.Email)
	}
	if item.Metadata["company"] != "Analytical Engines" {
		t.Fatalf("expected company metadata, got %v", item.Metadata)
	}
	if item.Metadata["lifecycle_stage"] != "customer" {
		t.Fatalf("expected lifecycle stage metadata, got %v", item.Metadata)
	}
	if item.Metadata["job_title"] != "Mathematician" {
		t.Fatalf("expected job title metadata, got %v", item.Metadata)
	}
	if _, ok := item.Metadata["website"]; ok {
		t.Fatal("expected absent fields to stay absent")
	}
}

func TestNormalizeIsDeterministic(t *testing.T) {
	provider := newTestProvider(t, devkit.NewFakeHTTPDoer())

	raw := core.RawRecord{
		"id":         "77",
		"properties": map[string]any{"firstname": "Grace", "lastname": "Hopper", "email": "grace@example.test"},
	}
	first := provider.Normalize(raw)
	second := provider.Normalize(raw)

	if first.ID != second.ID || first.Name != second.Name || first.Email != second.Email {
		t.Fatalf("expected identical output for identical input, got %+v vs %+v", first, second)
	}
	if len(first.Metadata) != len(second.Metadata) {
		t.Fatalf("expected identical metadata, got %v vs %v", first.Metadata, second.Metadata)
	}
}

func TestNormalizePartialContact(t *testing.T) {
	provider := newTestProvider(t, devkit.NewFakeHTTPDoer())

	item := provider.Normalize(core.RawRecord{"id": "9"})
	if item.ID != "9" || item.Name != "" || item.Email != "" {
		t.Fatalf("expected missing fields to map to empty values, got %+v", item)
	}
	if len(item.Metadata) != 0 {
		t.Fatalf("expected empty metadata, got %v", item.Metadata)
	}
}

func TestBeginAuthUsesHubSpotScopes(t *testing.T) {
	provider := newTestProvider(t, devkit.NewFakeHTTPDoer())

	response, err := provider.BeginAuth(context.Background(), core.BeginAuthRequest{
		Owner: core.OwnerRef{UserID: "user-1"},
		State: "state-token",
	})
	if err != nil {
		t.Fatalf("expected begin auth to succeed, got %v", err)
	}
	if !strings.HasPrefix(response.URL, AuthURL) {
		t.Fatalf("expected HubSpot authorize URL, got %q", response.URL)
	}
	parsed, err := url.Parse(response.URL)
	if err != nil {
		t.Fatalf("expected parseable URL, got %v", err)
	}
	if scope := parsed.Query().Get("scope"); !strings.Contains(scope, "crm.objects.contacts.read") {
		t.Fatalf("expected CRM scopes, got %q", scope)
	}
}
