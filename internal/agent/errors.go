package agent

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/atinylittleshell/farcode/internal/approval"
	"github.com/sashabaranov/go-openai"
)

// ErrNoProvider is returned when no model provider is configured.
var ErrNoProvider = errors.New("no model provider configured")

// ErrMaxIterations is returned when the model keeps calling tools past the
// iteration limit.
var ErrMaxIterations = errors.New("agent reached maximum iterations without completing")

// ErrorKind groups failures for the hint shown to the user.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindDenied
	KindToolUse
	KindBadRequest
	KindRateLimited
)

// Hint is the short explanation printed under an error of this kind.
func (k ErrorKind) Hint() string {
	switch k {
	case KindDenied:
		return "Tool call was denied by user."
	case KindToolUse:
		return "Tool calling error detected. The model produced a malformed tool call; try again or switch models with /model."
	case KindBadRequest:
		return "API error. The provider rejected the request; check the model name and your API key."
	case KindRateLimited:
		return "Throttling error. The provider is rate limiting requests; wait a moment or switch models with /model."
	}
	return ""
}

// Classify maps a SendMessage error to the kind of hint to show.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, approval.ErrDenied) {
		return KindDenied
	}

	msg := err.Error()
	if strings.Contains(msg, "tool_use_failed") {
		return KindToolUse
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch {
	case status == http.StatusTooManyRequests,
		strings.Contains(msg, strconv.Itoa(http.StatusTooManyRequests)),
		strings.Contains(msg, "Too Many Requests"):
		return KindRateLimited
	case status == http.StatusBadRequest,
		strings.Contains(msg, strconv.Itoa(http.StatusBadRequest)):
		return KindBadRequest
	}
	return KindUnknown
}
