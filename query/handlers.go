package query

import (
	"context"

	"github.com/goliatone/go-integrations/core"
)

// ItemsReader is the read slice of the integrations service: normalized item
// loads and the provider catalog.
type ItemsReader interface {
	LoadItems(ctx context.Context, req core.LoadItemsRequest) ([]core.IntegrationItem, error)
	Providers() []string
}

type LoadItemsQuery struct {
	reader ItemsReader
}

func NewLoadItemsQuery(reader ItemsReader) *LoadItemsQuery {
	return &LoadItemsQuery{reader: reader}
}

func (q *LoadItemsQuery) Query(ctx context.Context, msg LoadItemsMessage) ([]core.IntegrationItem, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: items reader is required")
	}
	return q.reader.LoadItems(ctx, msg.Request)
}

type ListProvidersQuery struct {
	reader ItemsReader
}

func NewListProvidersQuery(reader ItemsReader) *ListProvidersQuery {
	return &ListProvidersQuery{reader: reader}
}

func (q *ListProvidersQuery) Query(_ context.Context, _ ListProvidersMessage) ([]string, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: items reader is required")
	}
	return q.reader.Providers(), nil
}
