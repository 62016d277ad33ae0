package session

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRefreshInProgress  = errors.New("token refresh already in progress")
	ErrNoStoredTokens     = errors.New("no stored tokens to refresh with")
	ErrUnauthorized       = errors.New("unauthorized")
)
