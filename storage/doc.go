// Package storage provides interfaces and shared types for persisting OAuth
// clients and authorization grants.
//
// The storage package defines the two storage interfaces the server core
// depends on:
//   - ClientStore: read-only lookup of registered OAuth clients
//   - GrantStore: create/lookup/delete of authorization grants, including the
//     atomic consume operation the grant redeemer relies on
//
// Implementations are provided in subpackages:
//   - storage/memory: In-memory storage for development and testing
//   - storage/mock: Failing storage for unit testing error paths
//   - storage/valkey: Valkey/Redis-compatible distributed storage for production
package storage
