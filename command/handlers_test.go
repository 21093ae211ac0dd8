package command

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-integrations/core"
)

func TestConnectCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	expected := core.BeginAuthResponse{URL: "https://provider.test/auth", State: "st"}
	called := false

	svc := stubMutatingService{
		connectFn: func(_ context.Context, req core.ConnectRequest) (core.BeginAuthResponse, error) {
			called = true
			if req.ProviderID != "hubspot" {
				t.Fatalf("expected provider hubspot, got %q", req.ProviderID)
			}
			return expected, nil
		},
	}

	cmd := NewConnectCommand(svc)
	collector := gocmd.NewResult[core.BeginAuthResponse]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, ConnectMessage{Request: core.ConnectRequest{
		ProviderID: "hubspot",
		Owner:      core.OwnerRef{UserID: "u1"},
	}})
	if err != nil {
		t.Fatalf("execute connect: %v", err)
	}
	if !called {
		t.Fatalf("expected connect service invocation")
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if result.URL != expected.URL || result.State != expected.State {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestCompleteCallbackCommand_ExecuteStoresRecord(t *testing.T) {
	expected := core.TokenRecord{
		ID:          "cred_1",
		ProviderID:  "notion",
		Owner:       core.OwnerRef{UserID: "u1"},
		AccessToken: "access",
		ExpiresAt:   time.Now().Add(time.Hour),
	}

	svc := stubMutatingService{
		completeCallbackFn: func(_ context.Context, req core.CallbackRequest) (core.TokenRecord, error) {
			if req.State != "st" || req.Code != "code" {
				t.Fatalf("unexpected callback payload: %#v", req)
			}
			return expected, nil
		},
	}

	cmd := NewCompleteCallbackCommand(svc)
	collector := gocmd.NewResult[core.TokenRecord]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, CompleteCallbackMessage{Request: core.CallbackRequest{
		ProviderID: "notion",
		Code:       "code",
		State:      "st",
	}})
	if err != nil {
		t.Fatalf("execute complete callback: %v", err)
	}
	stored, ok := collector.Load()
	if !ok {
		t.Fatalf("expected token record result")
	}
	if stored.ID != expected.ID || stored.AccessToken != expected.AccessToken {
		t.Fatalf("unexpected record result: %#v", stored)
	}
}

func TestRefreshCommand_ExecutePropagatesServiceError(t *testing.T) {
	svc := stubMutatingService{
		refreshFn: func(_ context.Context, _ core.RefreshRequest) (core.TokenRecord, error) {
			return core.TokenRecord{}, core.ErrNoRefreshToken
		},
	}

	cmd := NewRefreshCommand(svc)
	err := cmd.Execute(context.Background(), RefreshMessage{Request: core.RefreshRequest{
		ProviderID: "airtable",
		Owner:      core.OwnerRef{UserID: "u1"},
	}})
	if !errors.Is(err, core.ErrNoRefreshToken) {
		t.Fatalf("expected refresh error to pass through, got %v", err)
	}
}

func TestRevokeCommand_ExecuteDelegates(t *testing.T) {
	called := false
	svc := stubMutatingService{
		revokeFn: func(_ context.Context, providerID string, owner core.OwnerRef) error {
			called = true
			if providerID != "hubspot" || owner.UserID != "u1" {
				t.Fatalf("unexpected revoke payload: %q %#v", providerID, owner)
			}
			return nil
		},
	}

	cmd := NewRevokeCommand(svc)
	if err := cmd.Execute(context.Background(), RevokeMessage{
		ProviderID: "hubspot",
		Owner:      core.OwnerRef{UserID: "u1"},
	}); err != nil {
		t.Fatalf("execute revoke: %v", err)
	}
	if !called {
		t.Fatalf("expected revoke invocation")
	}
}

func TestCommands_RequireService(t *testing.T) {
	if err := NewConnectCommand(nil).Execute(context.Background(), ConnectMessage{}); err == nil {
		t.Fatalf("expected connect dependency error")
	}
	if err := NewRefreshCommand(nil).Execute(context.Background(), RefreshMessage{}); err == nil {
		t.Fatalf("expected refresh dependency error")
	}
}

func TestMessages_Validate(t *testing.T) {
	owner := core.OwnerRef{UserID: "u1"}

	valid := []interface{ Validate() error }{
		ConnectMessage{Request: core.ConnectRequest{ProviderID: "hubspot", Owner: owner}},
		CompleteCallbackMessage{Request: core.CallbackRequest{ProviderID: "hubspot", State: "st"}},
		RefreshMessage{Request: core.RefreshRequest{ProviderID: "hubspot", Owner: owner}},
		RevokeMessage{ProviderID: "hubspot", Owner: owner},
	}
	for i, msg := range valid {
		if err := msg.Validate(); err != nil {
			t.Fatalf("expected message %d to validate, got %v", i, err)
		}
	}

	invalid := []interface{ Validate() error }{
		ConnectMessage{Request: core.ConnectRequest{Owner: owner}},
		ConnectMessage{Request: core.ConnectRequest{ProviderID: "hubspot"}},
		CompleteCallbackMessage{Request: core.CallbackRequest{ProviderID: "hubspot"}},
		CompleteCallbackMessage{Request: core.CallbackRequest{State: "st"}},
		RefreshMessage{Request: core.RefreshRequest{ProviderID: "hubspot"}},
		RevokeMessage{Owner: owner},
	}
	for i, msg := range invalid {
		if err := msg.Validate(); err == nil {
			t.Fatalf("expected message %d to fail validation", i)
		}
	}
}

func TestMessages_Types(t *testing.T) {
	if got := (ConnectMessage{}).Type(); got != TypeConnect {
		t.Fatalf("unexpected connect type %q", got)
	}
	if got := (CompleteCallbackMessage{}).Type(); got != TypeCompleteCallback {
		t.Fatalf("unexpected callback type %q", got)
	}
	if got := (RefreshMessage{}).Type(); got != TypeRefresh {
		t.Fatalf("unexpected refresh type %q", got)
	}
	if got := (RevokeMessage{}).Type(); got != TypeRevoke {
		t.Fatalf("unexpected revoke type %q", got)
	}
}

type stubMutatingService struct {
	connectFn          func(ctx context.Context, req core.ConnectRequest) (core.BeginAuthResponse, error)
	completeCallbackFn func(ctx context.Context, req core.CallbackRequest) (core.TokenRecord, error)
	refreshFn          func(ctx context.Context, req core.RefreshRequest) (core.TokenRecord, error)
	revokeFn           func(ctx context.Context, providerID string, owner core.OwnerRef) error
}

func (s stubMutatingService) Connect(ctx context.Context, req core.ConnectRequest) (core.BeginAuthResponse, error) {
	if s.connectFn == nil {
		return core.BeginAuthResponse{}, fmt.Errorf("connect not configured")
	}
	return s.connectFn(ctx, req)
}

func (s stubMutatingService) CompleteCallback(ctx context.Context, req core.CallbackRequest) (core.TokenRecord, error) {
	if s.completeCallbackFn == nil {
		return core.TokenRecord{}, fmt.Errorf("complete callback not configured")
	}
	return s.completeCallbackFn(ctx, req)
}

func (s stubMutatingService) Refresh(ctx context.Context, req core.RefreshRequest) (core.TokenRecord, error) {
	if s.refreshFn == nil {
		return core.TokenRecord{}, fmt.Errorf("refresh not configured")
	}
	return s.refreshFn(ctx, req)
}

func (s stubMutatingService) Revoke(ctx context.Context, providerID string, owner core.OwnerRef) error {
	if s.revokeFn == nil {
		return fmt.Errorf("revoke not configured")
	}
	return s.revokeFn(ctx, providerID, owner)
}
