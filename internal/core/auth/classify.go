package auth

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
)

// Classification is a user-facing category for an authentication failure.
type Classification string

const (
	ClassInvalidAuth     Classification = "invalid_auth"
	ClassAccountDisabled Classification = "account_disabled"
	ClassTooManyAttempts Classification = "too_many_attempts"
	ClassUnreachable     Classification = "cannot_connect"
	ClassTimeout         Classification = "timeout"
	ClassUnknown         Classification = "unknown"
)

// invalidCodes are the vendor codes that mean the credentials are wrong.
// Matched by prefix: the backend appends detail after the code, e.g.
// "INVALID_PASSWORD : ...".
var invalidCodes = []string{
	"INVALID_PASSWORD",
	"EMAIL_NOT_FOUND",
	"INVALID_EMAIL",
	"INVALID_LOGIN_CREDENTIALS",
}

// Classify maps an authentication error to a user-facing category. Every
// error maps to exactly one class; unrecognized errors map to ClassUnknown.
func Classify(err error) Classification {
	if err == nil {
		return ClassUnknown
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		for _, code := range invalidCodes {
			if strings.HasPrefix(apiErr.Code, code) {
				return ClassInvalidAuth
			}
		}
		switch {
		case strings.HasPrefix(apiErr.Code, "USER_DISABLED"):
			return ClassAccountDisabled
		case strings.HasPrefix(apiErr.Code, "TOO_MANY_ATTEMPTS_TRY_LATER"):
			return ClassTooManyAttempts
		case apiErr.StatusCode == 400:
			// 400 without a recognized code still means the request was
			// rejected, which for this endpoint means bad credentials.
			return ClassInvalidAuth
		}
		return ClassUnknown
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTimeout
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ClassUnreachable
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ClassUnreachable
	}

	return ClassUnknown
}

// Message returns a human-readable description for the classification,
// suitable for a setup form.
func (c Classification) Message() string {
	switch c {
	case ClassInvalidAuth:
		return "Invalid email or password"
	case ClassAccountDisabled:
		return "This account has been disabled"
	case ClassTooManyAttempts:
		return "Too many sign-in attempts, try again later"
	case ClassUnreachable:
		return "Could not reach the Huckleberry service"
	case ClassTimeout:
		return "Connection to the Huckleberry service timed out"
	default:
		return "Unexpected error during sign-in"
	}
}

// Fatal reports whether the failure will not resolve by retrying, meaning
// the daemon should exit and ask the user to fix the credentials.
func (c Classification) Fatal() bool {
	return c == ClassInvalidAuth || c == ClassAccountDisabled
}
