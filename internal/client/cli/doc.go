// Package cli implements the recreatio command-line client.
//
// Every invocation runs one subcommand against the vault server:
//
//	register <login> [display name]
//	login [-secure] <login>
//	logout
//	passwd
//	secure on|off
//	roles
//	verify [-role id] [chain ...]
//	export <chain>
//
// The session token is kept in a SQLite database under the data directory.
// Secure sessions ask for the password on every command, since the secret
// derived from it is never written to disk.
package cli
