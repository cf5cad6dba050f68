package api

import (
	"fmt"
	"strings"

	"studyboard/domain"
)

var (
	errMissingAuthorization = fmt.Errorf("%w: missing authorization header", domain.ErrUnauthenticated)
	errBadAuthorization     = fmt.Errorf("%w: bad auth header", domain.ErrUnauthenticated)
)

// bearerToken extracts the JWT from an "Authorization: Bearer <token>" value.
func bearerToken(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errMissingAuthorization
	}
	scheme, token, ok := strings.Cut(raw, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errBadAuthorization
	}
	token = strings.TrimSpace(token)
	if strings.Count(token, ".") != 2 || len(token) < 5 {
		return "", errBadAuthorization
	}
	return token, nil
}
