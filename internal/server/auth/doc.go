// Package auth holds the credential primitives of the server: the HS256
// token service used for access and refresh tokens and the argon2id password
// hasher.
package auth
