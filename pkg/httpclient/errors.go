package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/UrielMangisto/ShoppingWebsite-sub000/pkg/errors"
)

// rejectionBody mirrors the error body returned by the storefront backend on
// domain rejections: `{"reason": "..."}`. Some endpoints use `{"message": "..."}`
// for validation errors; both are accepted.
type rejectionBody struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// ParseResponseError reads the body of a non-2xx HTTP response and translates
// it into an AppError, distinguishing transport-level failures from domain
// rejections:
//
//   - 401 -> Unauthorized (no local mutation may be attempted)
//   - 404 -> NotFound
//   - other 4xx with a reason body -> Rejected, reason preserved verbatim
//   - 5xx -> Network (surfaced generically, retryable)
//
// The caller should only invoke this when resp.StatusCode is not 2xx.
// The response body is fully consumed and closed.
func ParseResponseError(resp *http.Response, operation string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB limit
	if err != nil {
		return apperrors.Network(fmt.Errorf("%s: status %d (read body: %w)", operation, resp.StatusCode, err))
	}

	if resp.StatusCode >= 500 {
		return apperrors.Network(fmt.Errorf("%s: backend returned %d: %s", operation, resp.StatusCode, string(bodyBytes)))
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return apperrors.Unauthorized(fmt.Sprintf("%s: not authorized", operation))
	case http.StatusNotFound:
		target := "resource"
		if resp.Request != nil && resp.Request.URL != nil {
			target = resp.Request.URL.Path
		}
		return apperrors.NotFound(operation, target)
	}

	// Remaining 4xx: a domain rejection carrying a reason.
	var body rejectionBody
	if json.Unmarshal(bodyBytes, &body) == nil {
		if body.Reason != "" {
			return apperrors.Rejected(body.Reason, resp.StatusCode)
		}
		if body.Message != "" {
			return apperrors.Rejected(body.Message, resp.StatusCode)
		}
	}

	return apperrors.Rejected(fmt.Sprintf("%s failed with status %d", operation, resp.StatusCode), resp.StatusCode)
}
