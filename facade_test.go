package integrations

import (
	"context"
	"testing"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/query"
)

type fakeService struct {
	providers []string
}

func (s *fakeService) Connect(_ context.Context, _ core.ConnectRequest) (core.BeginAuthResponse, error) {
	return core.BeginAuthResponse{URL: "https://provider.test/auth"}, nil
}

func (s *fakeService) CompleteCallback(_ context.Context, _ core.CallbackRequest) (core.TokenRecord, error) {
	return core.TokenRecord{}, nil
}

func (s *fakeService) Refresh(_ context.Context, _ core.RefreshRequest) (core.TokenRecord, error) {
	return core.TokenRecord{}, nil
}

func (s *fakeService) Revoke(_ context.Context, _ string, _ core.OwnerRef) error {
	return nil
}

func (s *fakeService) LoadItems(_ context.Context, _ core.LoadItemsRequest) ([]core.IntegrationItem, error) {
	return nil, nil
}

func (s *fakeService) Providers() []string {
	return s.providers
}

func TestNewFacadeRequiresService(t *testing.T) {
	if _, err := NewFacade(nil); err == nil {
		t.Fatal("expected an error for a missing service")
	}
}

func TestNewFacadeWiresHandlers(t *testing.T) {
	service := &fakeService{providers: []string{"airtable", "hubspot"}}

	facade, err := NewFacade(service)
	if err != nil {
		t.Fatalf("expected facade construction to succeed, got %v", err)
	}

	commands := facade.Commands()
	if commands.Connect == nil || commands.CompleteCallback == nil || commands.Refresh == nil || commands.Revoke == nil {
		t.Fatalf("expected all commands wired, got %+v", commands)
	}
	queries := facade.Queries()
	if queries.LoadItems == nil || queries.ListProviders == nil {
		t.Fatalf("expected all queries wired, got %+v", queries)
	}
	if facade.Service() == nil {
		t.Fatal("expected the service to be exposed")
	}

	providers, err := queries.ListProviders.Query(context.Background(), query.ListProvidersMessage{})
	if err != nil {
		t.Fatalf("expected provider listing to succeed, got %v", err)
	}
	if len(providers) != 2 || providers[0] != "airtable" {
		t.Fatalf("unexpected providers: %v", providers)
	}
}

func TestNewBuildsServiceFromConfig(t *testing.T) {
	facade, err := New(core.Config{ServiceName: "integrations-test"})
	if err != nil {
		t.Fatalf("expected facade construction to succeed, got %v", err)
	}
	if facade.Service() == nil {
		t.Fatal("expected a constructed service")
	}
	if providers := facade.Service().Providers(); len(providers) != 0 {
		t.Fatalf("expected an empty catalog before registration, got %v", providers)
	}
}
