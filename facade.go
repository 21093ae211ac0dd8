// Package integrations bundles the credential lifecycle service with its
// command and query handlers behind one constructor, so hosting applications
// wire a single facade instead of assembling the pieces themselves.
package integrations

import (
	"fmt"

	integrationscommand "github.com/goliatone/go-integrations/command"
	"github.com/goliatone/go-integrations/core"
	integrationsquery "github.com/goliatone/go-integrations/query"
)

// CommandQueryService is the full surface the facade wires: lifecycle
// mutations plus item reads.
type CommandQueryService interface {
	integrationscommand.MutatingService
	integrationsquery.ItemsReader
}

type Commands struct {
	Connect          *integrationscommand.ConnectCommand
	CompleteCallback *integrationscommand.CompleteCallbackCommand
	Refresh          *integrationscommand.RefreshCommand
	Revoke           *integrationscommand.RevokeCommand
}

type Queries struct {
	LoadItems     *integrationsquery.LoadItemsQuery
	ListProviders *integrationsquery.ListProvidersQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("integrations: command/query service is required")
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		Connect:          integrationscommand.NewConnectCommand(service),
		CompleteCallback: integrationscommand.NewCompleteCallbackCommand(service),
		Refresh:          integrationscommand.NewRefreshCommand(service),
		Revoke:           integrationscommand.NewRevokeCommand(service),
	}
	facade.queries = Queries{
		LoadItems:     integrationsquery.NewLoadItemsQuery(service),
		ListProviders: integrationsquery.NewListProvidersQuery(service),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// New builds a ready-to-use facade around a service constructed from the
// given configuration and options.
func New(cfg core.Config, options ...core.Option) (*Facade, error) {
	service, err := core.NewService(cfg, options...)
	if err != nil {
		return nil, err
	}
	return NewFacade(service)
}
