// Package jwt authenticates callers with HS256 bearer tokens.
//
// Tokens are issued by the account service; this package only verifies them
// and exposes the subject as the caller's user ID. RequireUser rejects
// requests without a valid token while OptionalUser lets anonymous callers
// through, which the receipt verification endpoint needs for purchases made
// before sign-in.
package jwt
