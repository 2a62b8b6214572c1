package search

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	cerrors "github.com/Aman-CERP/corpusctl/internal/errors"
)

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// missingReference matches 400 messages about a referenced resource that the
// service cannot see yet.
var missingReference = []string{"does not exist", "was not found", "could not be found", "cannot find"}

// responseError maps a non-success response to a CorpusError.
func responseError(resp *http.Response, kind Kind, name string) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var eb errorBody
	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &eb) == nil && eb.Error.Message != "" {
		msg = eb.Error.Message
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	subject := string(kind)
	if name != "" {
		subject = fmt.Sprintf("%s %q", kind.Singular(), name)
	}

	var ce *cerrors.CorpusError
	switch code := resp.StatusCode; {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		ce = cerrors.New(cerrors.ErrCodeUnauthorized, "search service rejected credentials", nil).
			WithSuggestion("Check AZURE_SEARCH_ADMIN_KEY")
	case code == http.StatusNotFound:
		ce = cerrors.NotFoundError(subject+" not found", nil)
	case code == http.StatusConflict || code == http.StatusPreconditionFailed:
		ce = cerrors.ConflictError(subject+" already exists", nil).
			WithSuggestion("Tear down the prefix first or choose a different prefix")
	case code == http.StatusBadRequest && mentionsMissingReference(msg):
		ce = cerrors.New(cerrors.ErrCodeReferenceNotFound, subject+" references a resource that is not visible yet: "+msg, nil)
	case code == http.StatusBadRequest:
		ce = cerrors.New(cerrors.ErrCodeRequestRejected, subject+" rejected: "+msg, nil)
	case code == http.StatusTooManyRequests:
		ce = cerrors.New(cerrors.ErrCodeRateLimited, "search service throttled the request", nil)
	case code >= 500:
		ce = cerrors.New(cerrors.ErrCodeServiceUnavailable, "search service error: "+msg, nil)
	default:
		ce = cerrors.New(cerrors.ErrCodeUnexpectedResponse, fmt.Sprintf("unexpected status %d: %s", code, msg), nil)
	}

	ce = ce.WithDetail("status", fmt.Sprintf("%d", resp.StatusCode))
	if name != "" {
		ce = ce.WithDetail("resource", name)
	}
	if eb.Error.Code != "" {
		ce = ce.WithDetail("service_code", eb.Error.Code)
	}
	if id := resp.Header.Get("request-id"); id != "" {
		ce = ce.WithDetail("request_id", id)
	}
	return ce
}

func mentionsMissingReference(msg string) bool {
	lower := strings.ToLower(msg)
	for _, m := range missingReference {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
