package query

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-integrations/core"
)

const (
	TypeLoadItems     = "integrations.query.items.load"
	TypeListProviders = "integrations.query.providers.list"
)

type LoadItemsMessage struct {
	Request core.LoadItemsRequest
}

func (LoadItemsMessage) Type() string { return TypeLoadItems }

func (m LoadItemsMessage) Validate() error {
	if strings.TrimSpace(m.Request.ProviderID) == "" {
		return fmt.Errorf("query: provider id is required")
	}
	if err := m.Request.Owner.Validate(); err != nil {
		return err
	}
	return nil
}

type ListProvidersMessage struct{}

func (ListProvidersMessage) Type() string { return TypeListProviders }

func (ListProvidersMessage) Validate() error { return nil }
