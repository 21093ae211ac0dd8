// Package providers carries the shared OAuth 2.0 adapter machinery concrete
// provider packages build on: authorization URL construction, the token
// endpoint client, and a classified JSON API client with bounded retries.
// Each integrated service lives in its own subpackage and composes these
// pieces with its endpoint catalog and normalization rules.
package providers
