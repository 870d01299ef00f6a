package common

// AccessTokenHeaderName is the gRPC metadata key carrying the access token.
const AccessTokenHeaderName = "access_token"

// SecretHeaderName is the gRPC metadata key carrying a base64 H3 for requests
// made from a secure-mode session, where no master key is cached server-side.
const SecretHeaderName = "h3"

// SecretSize is the length in bytes of H3, of verifiers and of symmetric keys.
const SecretSize = 32
