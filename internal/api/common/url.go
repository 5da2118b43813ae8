package common

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/toolhive-update-agent/internal/requests"
)

// GetRequestName extracts and decodes a request name from the URL and validates it
// with the same rules the dispatcher applies.
func GetRequestName(r *http.Request, paramName string) (string, error) {
	decoded, err := url.PathUnescape(chi.URLParam(r, paramName))
	if err != nil {
		return "", fmt.Errorf("invalid URL encoding in %s", paramName)
	}
	if err := requests.ValidateName(decoded); err != nil {
		return "", err
	}
	return decoded, nil
}
