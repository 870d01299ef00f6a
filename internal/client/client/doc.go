// Package client is the client side of the vault: it derives H3 from a
// password, talks to recreatio.v1.Vault over gRPC with the JSON codec, and
// keeps the local SQLite database that remembers the current session.
package client
