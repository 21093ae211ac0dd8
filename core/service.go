package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

type ConnectRequest struct {
	ProviderID      string
	Owner           OwnerRef
	RedirectURI     string
	RequestedScopes []string
}

type CallbackRequest struct {
	ProviderID  string
	Code        string
	State       string
	RedirectURI string
}

type RefreshRequest struct {
	ProviderID string
	Owner      OwnerRef
	Record     *TokenRecord
}

type LoadItemsRequest struct {
	ProviderID string
	Owner      OwnerRef
}

// Service orchestrates the credential lifecycle: it issues CSRF state, drives
// code exchange, keeps tokens fresh, and loads normalized provider items. All
// shared mutable state lives behind the state and credential stores; refresh
// coordination is the only in-process synchronization.
type Service struct {
	config           Config
	logger           Logger
	loggerProvider   LoggerProvider
	metricsRecorder  MetricsRecorder
	errorFactory     ErrorFactory
	errorMapper      ErrorMapper
	configProvider   ConfigProvider
	optionsResolver  OptionsResolver
	stateStore       StateStore
	credentialStore  CredentialStore
	registry         Registry
	refreshScheduler BackoffScheduler
	refreshGroup     singleflight.Group
}

func NewService(cfg Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("integrations", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("integrations"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		factory := builder.errorFactory
		builder.errorMapper = func(err error) *goerrors.Error {
			return mapServiceError(factory, err)
		}
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.registry == nil {
		builder.registry = NewProviderRegistry()
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.stateStore == nil {
		builder.stateStore = NewMemoryStateStore(finalConfig.StateTTL)
	}
	// The default scheduler must come from the resolved config, not package
	// defaults: the retry knobs are settable through every config layer.
	if builder.refreshScheduler == nil {
		builder.refreshScheduler = ExponentialBackoffScheduler{
			Initial: finalConfig.Retry.InitialBackoff,
			Max:     finalConfig.Retry.MaxBackoff,
		}
	}

	return &Service{
		config:           finalConfig,
		logger:           logger,
		loggerProvider:   provider,
		metricsRecorder:  builder.metricsRecorder,
		errorFactory:     builder.errorFactory,
		errorMapper:      builder.errorMapper,
		configProvider:   builder.configProvider,
		optionsResolver:  builder.optionsResolver,
		stateStore:       builder.stateStore,
		credentialStore:  builder.credentialStore,
		registry:         builder.registry,
		refreshScheduler: builder.refreshScheduler,
	}, nil
}

func Setup(cfg Config, options ...Option) (*Service, error) {
	return NewService(cfg, options...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

// Connect issues a fresh authorization attempt: it generates an unguessable
// state token, persists the attempt with a short TTL, and returns the
// provider authorization URL for the caller to redirect to.
func (s *Service) Connect(ctx context.Context, req ConnectRequest) (response BeginAuthResponse, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider_id": req.ProviderID,
		"user_id":     req.Owner.UserID,
		"org_id":      req.Owner.OrgID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "connect", err, fields)
	}()

	if err = req.Owner.Validate(); err != nil {
		err = s.mapError(err)
		return BeginAuthResponse{}, err
	}
	provider, err := s.resolveProvider(req.ProviderID)
	if err != nil {
		return BeginAuthResponse{}, err
	}

	state, generateErr := GenerateStateToken()
	if generateErr != nil {
		err = s.mapError(generateErr)
		return BeginAuthResponse{}, err
	}
	requested := normalizeScopes(req.RequestedScopes)
	if len(requested) == 0 {
		requested = normalizeScopes(provider.DefaultScopes())
	}

	response, err = provider.BeginAuth(ctx, BeginAuthRequest{
		ProviderID:      req.ProviderID,
		Owner:           req.Owner,
		RedirectURI:     req.RedirectURI,
		State:           state,
		RequestedScopes: requested,
	})
	if err != nil {
		err = s.mapError(err)
		return BeginAuthResponse{}, err
	}
	if strings.TrimSpace(response.State) == "" {
		response.State = state
	}

	now := time.Now().UTC()
	saveErr := s.stateStore.Save(ctx, AuthState{
		State:           response.State,
		ProviderID:      strings.TrimSpace(req.ProviderID),
		Owner:           req.Owner,
		RedirectURI:     req.RedirectURI,
		RequestedScopes: requested,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.stateTTL()),
	})
	if saveErr != nil {
		err = s.mapError(saveErr)
		return BeginAuthResponse{}, err
	}

	return response, nil
}

// CompleteCallback validates and consumes the state token before any network
// call to the provider, exchanges the code, and persists the resulting
// record. A replayed or forged callback fails ErrInvalidState here.
func (s *Service) CompleteCallback(ctx context.Context, req CallbackRequest) (record TokenRecord, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider_id": req.ProviderID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "complete_callback", err, fields)
	}()

	attempt, err := s.consumeCallbackState(ctx, req)
	if err != nil {
		err = s.mapError(err)
		return TokenRecord{}, err
	}
	fields["user_id"] = attempt.Owner.UserID
	fields["org_id"] = attempt.Owner.OrgID

	code := strings.TrimSpace(req.Code)
	if code == "" {
		err = s.mapError(fmt.Errorf("%w: authorization code is required", ErrExchangeFailed))
		return TokenRecord{}, err
	}

	provider, err := s.resolveProvider(req.ProviderID)
	if err != nil {
		return TokenRecord{}, err
	}

	redirectURI := strings.TrimSpace(req.RedirectURI)
	if redirectURI == "" {
		redirectURI = attempt.RedirectURI
	}
	record, err = provider.ExchangeCode(ctx, ExchangeRequest{
		ProviderID:  req.ProviderID,
		Owner:       attempt.Owner,
		Code:        code,
		RedirectURI: redirectURI,
		Scopes:      attempt.RequestedScopes,
	})
	if err != nil {
		err = s.mapError(err)
		return TokenRecord{}, err
	}

	if strings.TrimSpace(record.ID) == "" {
		record.ID = uuid.NewString()
	}
	record.ProviderID = strings.TrimSpace(req.ProviderID)
	record.Owner = attempt.Owner

	if s.credentialStore != nil {
		if saveErr := s.credentialStore.Save(ctx, record); saveErr != nil {
			err = s.mapError(saveErr)
			return TokenRecord{}, err
		}
	}
	return record, nil
}

func (s *Service) consumeCallbackState(ctx context.Context, req CallbackRequest) (AuthState, error) {
	if s == nil || s.stateStore == nil {
		return AuthState{}, fmt.Errorf("core: state store is not configured")
	}
	state := strings.TrimSpace(req.State)
	if state == "" {
		return AuthState{}, fmt.Errorf("%w: state token is required", ErrInvalidState)
	}
	record, err := s.stateStore.Consume(ctx, state)
	if err != nil {
		return AuthState{}, err
	}
	if !strings.EqualFold(strings.TrimSpace(record.ProviderID), strings.TrimSpace(req.ProviderID)) {
		return AuthState{}, fmt.Errorf("%w: provider mismatch", ErrInvalidState)
	}
	savedRedirect := strings.TrimSpace(record.RedirectURI)
	requestRedirect := strings.TrimSpace(req.RedirectURI)
	if savedRedirect != "" && requestRedirect != "" && savedRedirect != requestRedirect {
		return AuthState{}, fmt.Errorf("%w: redirect mismatch", ErrInvalidState)
	}
	return record, nil
}

// Refresh renews the credential for a provider/owner pair. Refresh is
// single-flight per pair: concurrent callers share one outbound request and
// observe the same record or the same failure.
func (s *Service) Refresh(ctx context.Context, req RefreshRequest) (record TokenRecord, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider_id": req.ProviderID,
		"user_id":     req.Owner.UserID,
		"org_id":      req.Owner.OrgID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "refresh", err, fields)
	}()

	if err = req.Owner.Validate(); err != nil {
		err = s.mapError(err)
		return TokenRecord{}, err
	}
	provider, err := s.resolveProvider(req.ProviderID)
	if err != nil {
		return TokenRecord{}, err
	}

	record, err = s.sharedRefresh(ctx, provider, req.Owner, req.Record)
	if err != nil {
		err = s.mapError(err)
		return TokenRecord{}, err
	}
	return record, nil
}

// sharedRefresh funnels concurrent refreshes for one credential through a
// single in-flight call. The flight key is provider plus owner, matching the
// credential store key.
func (s *Service) sharedRefresh(ctx context.Context, provider Provider, owner OwnerRef, seed *TokenRecord) (TokenRecord, error) {
	key := strings.TrimSpace(provider.ID()) + "/" + owner.Key()
	result, err, _ := s.refreshGroup.Do(key, func() (any, error) {
		return s.runRefresh(ctx, provider, owner, seed)
	})
	if err != nil {
		return TokenRecord{}, err
	}
	record, ok := result.(TokenRecord)
	if !ok {
		return TokenRecord{}, fmt.Errorf("core: unexpected refresh result type %T", result)
	}
	return record, nil
}

func (s *Service) runRefresh(ctx context.Context, provider Provider, owner OwnerRef, seed *TokenRecord) (TokenRecord, error) {
	current := TokenRecord{}
	if seed != nil {
		current = *seed
	} else {
		if s.credentialStore == nil {
			return TokenRecord{}, fmt.Errorf("core: refresh requires a credential store or an input record")
		}
		stored, loadErr := s.credentialStore.Get(ctx, provider.ID(), owner)
		if loadErr != nil {
			return TokenRecord{}, loadErr
		}
		current = stored
	}

	if !current.Refreshable() {
		return TokenRecord{}, fmt.Errorf("%w: provider %q", ErrNoRefreshToken, provider.ID())
	}

	maxAttempts := s.config.Retry.MaxTransientAttempts + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var refreshed TokenRecord
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		refreshed, lastErr = provider.Refresh(ctx, current)
		if lastErr == nil {
			break
		}
		if !errors.Is(lastErr, ErrTransient) || attempt == maxAttempts {
			if errors.Is(lastErr, ErrRefreshFailed) {
				s.discardInvalidatedRecord(ctx, provider.ID(), owner)
			}
			return TokenRecord{}, lastErr
		}
		delay := defaultRefreshInitialBackoff
		if s.refreshScheduler != nil {
			delay = s.refreshScheduler.NextDelay(attempt)
		}
		if waitErr := waitWithContext(ctx, delay); waitErr != nil {
			return TokenRecord{}, fmt.Errorf("%w: %v", ErrTransient, waitErr)
		}
	}

	refreshed.ID = current.ID
	refreshed.ProviderID = provider.ID()
	refreshed.Owner = owner
	if strings.TrimSpace(refreshed.RefreshToken) == "" {
		refreshed.RefreshToken = current.RefreshToken
	}

	if s.credentialStore != nil {
		if saveErr := s.credentialStore.Save(ctx, refreshed); saveErr != nil {
			return TokenRecord{}, saveErr
		}
	}
	return refreshed, nil
}

// discardInvalidatedRecord drops a credential the provider reported as no
// longer valid, so later lookups fail NotAuthorized instead of retrying a
// dead refresh token.
func (s *Service) discardInvalidatedRecord(ctx context.Context, providerID string, owner OwnerRef) {
	if s == nil || s.credentialStore == nil {
		return
	}
	if deleteErr := s.credentialStore.Delete(ctx, providerID, owner); deleteErr != nil {
		s.logError(ctx, "discard invalidated credential failed", map[string]any{
			"provider_id": providerID,
			"user_id":     owner.UserID,
			"org_id":      owner.OrgID,
			"error":       deleteErr.Error(),
		})
	}
}

// LoadItems returns the normalized items for an authorized owner, refreshing
// the credential first when it is expired or inside the refresh lead window.
// A token rejected at fetch time triggers exactly one forced refresh-and-retry.
func (s *Service) LoadItems(ctx context.Context, req LoadItemsRequest) (items []IntegrationItem, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider_id": req.ProviderID,
		"user_id":     req.Owner.UserID,
		"org_id":      req.Owner.OrgID,
	}
	defer func() {
		if err == nil {
			fields["item_count"] = len(items)
		}
		s.observeOperation(ctx, startedAt, "load_items", err, fields)
	}()

	if err = req.Owner.Validate(); err != nil {
		err = s.mapError(err)
		return nil, err
	}
	provider, err := s.resolveProvider(req.ProviderID)
	if err != nil {
		return nil, err
	}
	if s.credentialStore == nil {
		err = s.mapError(fmt.Errorf("core: credential store is not configured"))
		return nil, err
	}

	record, err := s.credentialStore.Get(ctx, provider.ID(), req.Owner)
	if err != nil {
		err = s.mapError(err)
		return nil, err
	}

	state := ResolveTokenState(time.Now().UTC(), record, s.config.RefreshLeadWindow)
	if ShouldRefresh(state) {
		if !record.Refreshable() {
			if state.IsExpired || !state.HasAccessToken {
				err = s.mapError(fmt.Errorf("%w: provider %q credential expired", ErrNoRefreshToken, provider.ID()))
				return nil, err
			}
			// Expiring soon but not renewable: serve with the current token
			// until it actually lapses.
		} else {
			record, err = s.sharedRefresh(ctx, provider, req.Owner, nil)
			if err != nil {
				err = s.mapError(err)
				return nil, err
			}
		}
	}

	// FetchTimeout bounds the whole fetch phase, including the one forced
	// refresh-and-retry below.
	fetchCtx := ctx
	if s.config.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.config.FetchTimeout)
		defer cancel()
	}

	raw, fetchErr := provider.FetchItems(fetchCtx, record)
	if errors.Is(fetchErr, ErrUnauthorized) {
		// Locally unexpired but rejected upstream: force one refresh and
		// retry once, never loop.
		record, err = s.sharedRefresh(fetchCtx, provider, req.Owner, nil)
		if err != nil {
			err = s.mapError(err)
			return nil, err
		}
		raw, fetchErr = provider.FetchItems(fetchCtx, record)
	}
	if fetchErr != nil {
		err = s.mapError(fetchErr)
		return nil, err
	}

	items = make([]IntegrationItem, 0, len(raw))
	for _, entry := range raw {
		items = append(items, provider.Normalize(entry))
	}
	return items, nil
}

// Revoke removes the stored credential for a provider/owner pair.
func (s *Service) Revoke(ctx context.Context, providerID string, owner OwnerRef) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider_id": providerID,
		"user_id":     owner.UserID,
		"org_id":      owner.OrgID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "revoke", err, fields)
	}()

	if err = owner.Validate(); err != nil {
		err = s.mapError(err)
		return err
	}
	if s.credentialStore == nil {
		err = s.mapError(fmt.Errorf("core: credential store is not configured"))
		return err
	}
	if err = s.credentialStore.Delete(ctx, strings.TrimSpace(providerID), owner); err != nil {
		err = s.mapError(err)
		return err
	}
	return nil
}

func (s *Service) stateTTL() time.Duration {
	if s == nil || s.config.StateTTL <= 0 {
		return DefaultStateTTL
	}
	return s.config.StateTTL
}

func (s *Service) resolveProvider(providerID string) (Provider, error) {
	if s == nil || s.registry == nil {
		return nil, s.mapError(fmt.Errorf("core: registry unavailable"))
	}
	providerID = strings.TrimSpace(providerID)
	provider, ok := s.registry.Get(providerID)
	if ok {
		return provider, nil
	}
	return nil, s.mapError(fmt.Errorf("%w: %q", ErrProviderNotFound, providerID))
}

// Providers lists the IDs of every registered provider adapter.
func (s *Service) Providers() []string {
	if s == nil || s.registry == nil {
		return []string{}
	}
	registered := s.registry.List()
	ids := make([]string, 0, len(registered))
	for _, provider := range registered {
		ids = append(ids, provider.ID())
	}
	return ids
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}
