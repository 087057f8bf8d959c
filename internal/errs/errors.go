// Package errs defines the stable error codes surfaced by the economy core.
// Every domain error carries a machine-readable code and an HTTP status class
// so the transport layer can map failures without string matching.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes returned by the mutation and progression layers.
const (
	CodeIdempotencyPayloadMismatch = "IDEMPOTENCY_PAYLOAD_MISMATCH"
	CodeIdempotencyInProgress      = "IDEMPOTENCY_IN_PROGRESS"
	CodeDuplicateClaim             = "DUPLICATE_CLAIM"
	CodeTeamNameTaken              = "TEAM_NAME_TAKEN"
	CodeAlreadyInTeam              = "ALREADY_IN_TEAM"

	CodeTierNotReached                  = "TIER_NOT_REACHED"
	CodeDailyTeamContributionCapReached = "DAILY_TEAM_CONTRIBUTION_CAP_REACHED"
	CodeWeeklyQuestRequirementNotMet    = "WEEKLY_QUEST_REQUIREMENT_NOT_MET"

	CodeUserNotFound        = "USER_NOT_FOUND"
	CodeSeasonNotFound      = "SEASON_NOT_FOUND"
	CodeNoActiveSeason      = "NO_ACTIVE_SEASON"
	CodeTeamNotFound        = "TEAM_NOT_FOUND"
	CodeQuestNotFound       = "QUEST_NOT_FOUND"
	CodeFlagNotFound        = "FLAG_NOT_FOUND"
	CodeRewardNotConfigured = "REWARD_NOT_CONFIGURED"

	CodeInvalidEventType  = "INVALID_EVENT_TYPE"
	CodeInvalidEventValue = "INVALID_EVENT_VALUE"
	CodeEventTimeInFuture = "EVENT_TIME_IN_FUTURE"
	CodeInvalidArgument   = "INVALID_ARGUMENT"
)

// Error is a domain error with a stable code and HTTP status class.
type Error struct {
	Code    string
	Status  int
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Conflict creates a 409-class error (concurrency conflicts, precondition failures).
func Conflict(code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Status: http.StatusConflict, Message: fmt.Sprintf(format, args...)}
}

// NotFound creates a 404-class error.
func NotFound(code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Status: http.StatusNotFound, Message: fmt.Sprintf(format, args...)}
}

// Invalid creates a 400-class error, rejected before any transaction opens.
func Invalid(code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the stable code from err, or empty string for non-domain errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// StatusOf extracts the HTTP status class from err, defaulting to 500 for
// infrastructure failures.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return http.StatusInternalServerError
}

// HasCode reports whether err carries the given stable code.
func HasCode(err error, code string) bool {
	return CodeOf(err) == code
}
