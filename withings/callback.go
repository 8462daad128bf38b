package withings

import (
	"fmt"
	"net/url"
	"strings"
)

// CallbackParams are the query parameters carried by an authorization
// redirect, whatever its concrete shape.
type CallbackParams struct {
	Code             string
	Error            string
	ErrorDescription string
	State            string
}

// ParseCallback extracts the authorization parameters from a redirect
// URL. It accepts both hosted-web redirects (https://...) and app deep
// links (app-scheme://callback?...), including deep links that carry
// the parameters in the fragment rather than the query, which some
// in-app browsers produce when rewriting the redirect.
func ParseCallback(raw string) (CallbackParams, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return CallbackParams{}, fmt.Errorf("empty callback URL")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return CallbackParams{}, fmt.Errorf("parsing callback URL: %w", err)
	}

	query := u.Query()
	if len(query) == 0 && u.Fragment != "" {
		if fragQuery, err := url.ParseQuery(u.Fragment); err == nil {
			query = fragQuery
		}
	}

	return CallbackParams{
		Code:             query.Get("code"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
		State:            query.Get("state"),
	}, nil
}
