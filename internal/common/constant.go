package common

import "time"

// AuthorizationHeaderName is the HTTP header (and gRPC metadata key) that
// carries bearer tokens.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix is stripped from Authorization values when present.
const BearerPrefix = "Bearer "

// OneTimeTokenBytes is the amount of randomness in verification and reset tokens.
const OneTimeTokenBytes = 32

// OneTimeTokenValidity is how long verification and reset tokens stay usable.
const OneTimeTokenValidity = 15 * time.Minute
