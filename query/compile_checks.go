package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-integrations/core"
)

var (
	_ gocmd.Querier[LoadItemsMessage, []core.IntegrationItem] = (*LoadItemsQuery)(nil)
	_ gocmd.Querier[ListProvidersMessage, []string]           = (*ListProvidersQuery)(nil)
)
