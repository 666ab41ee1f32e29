package llm

import (
	"fmt"
	"net/http"
	"strings"

	"docgen/internal/domain/entity"
)

var safetyMarkers = []string{"safety", "blocked", "content filter", "content_filter", "prohibited", "harm"}

func isSafetyMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, m := range safetyMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// classifyStatus maps a provider error response onto a client error kind.
// status is the RPC-style status string when the provider sends one.
func classifyStatus(provider string, code int, status, message string, err error) *entity.ClientError {
	msg := fmt.Sprintf("%s api error %d", provider, code)
	if status != "" {
		msg += " " + status
	}
	if message != "" {
		msg += ": " + message
	}

	switch {
	case code == http.StatusTooManyRequests || status == "RESOURCE_EXHAUSTED":
		return entity.NewClientError(entity.ClientErrorRateLimited, msg, err)
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout || status == "DEADLINE_EXCEEDED":
		return entity.NewClientError(entity.ClientErrorTimedOut, msg, err)
	case code == http.StatusBadRequest || status == "INVALID_ARGUMENT" || status == "FAILED_PRECONDITION":
		if isSafetyMessage(message) {
			return entity.NewClientError(entity.ClientErrorContentFiltered, msg, err)
		}
		return entity.NewClientError(entity.ClientErrorInvalidRequest, msg, err)
	default:
		return entity.NewClientError(entity.ClientErrorOther, msg, err)
	}
}
