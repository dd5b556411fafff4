// Package valkey provides a Valkey-backed implementation of the storage
// interfaces for multi-instance deployments.
//
// Grants are stored as JSON values with a server-side TTL matching the grant
// lifetime. Redemption uses a Lua script so that validation and deletion
// happen atomically on the server: of any number of concurrent redemption
// attempts for the same grant, exactly one succeeds.
//
// The package also works against Redis servers, since Valkey is
// protocol-compatible.
package valkey
