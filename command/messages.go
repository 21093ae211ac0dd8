package command

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-integrations/core"
)

const (
	TypeConnect          = "integrations.command.connect"
	TypeCompleteCallback = "integrations.command.callback.complete"
	TypeRefresh          = "integrations.command.refresh"
	TypeRevoke           = "integrations.command.revoke"
)

type ConnectMessage struct {
	Request core.ConnectRequest
}

func (ConnectMessage) Type() string { return TypeConnect }

func (m ConnectMessage) Validate() error {
	if strings.TrimSpace(m.Request.ProviderID) == "" {
		return fmt.Errorf("command: provider id is required")
	}
	if err := m.Request.Owner.Validate(); err != nil {
		return err
	}
	return nil
}

type CompleteCallbackMessage struct {
	Request core.CallbackRequest
}

func (CompleteCallbackMessage) Type() string { return TypeCompleteCallback }

func (m CompleteCallbackMessage) Validate() error {
	if strings.TrimSpace(m.Request.ProviderID) == "" {
		return fmt.Errorf("command: provider id is required")
	}
	if strings.TrimSpace(m.Request.State) == "" {
		return fmt.Errorf("command: state token is required")
	}
	return nil
}

type RefreshMessage struct {
	Request core.RefreshRequest
}

func (RefreshMessage) Type() string { return TypeRefresh }

func (m RefreshMessage) Validate() error {
	if strings.TrimSpace(m.Request.ProviderID) == "" {
		return fmt.Errorf("command: provider id is required")
	}
	if err := m.Request.Owner.Validate(); err != nil {
		return err
	}
	return nil
}

type RevokeMessage struct {
	ProviderID string
	Owner      core.OwnerRef
}

func (RevokeMessage) Type() string { return TypeRevoke }

func (m RevokeMessage) Validate() error {
	if strings.TrimSpace(m.ProviderID) == "" {
		return fmt.Errorf("command: provider id is required")
	}
	if err := m.Owner.Validate(); err != nil {
		return err
	}
	return nil
}
