// Package core contains the canonical integration domain: owner and
// credential entities, the provider adapter contract, and the orchestration
// service that drives authorization, token refresh, and item loading.
// Provider-specific and store-specific adapters depend on this package; core
// must not depend on them.
package core
