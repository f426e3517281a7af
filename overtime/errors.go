/*
errors.go - Error taxonomy

PURPOSE:
  The callables answer with a tagged {error: kind} payload. Kinds form a
  closed set; each failure carries structured context (organization,
  offending key) instead of an interpolated message.

KINDS:
  Boundary (recovered into {error} responses):
    no_params, wrong_user, not_admin, not_authorized
  Referential (abort a report run):
    no organization, no spreadsheet id, no user_organization, no user
  Fallback:
    unknown (carries the underlying error)

USAGE:
  return overtime.NewError(overtime.KindNoUser, org.Key, m.UID, nil)

  if errors.Is(err, overtime.ErrNotAdmin) { ... }
  kind := overtime.KindOf(err)
*/
package overtime

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindNoParams        ErrorKind = "no_params"
	KindWrongUser       ErrorKind = "wrong_user"
	KindNotAdmin        ErrorKind = "not_admin"
	KindNotAuthorized   ErrorKind = "not_authorized"
	KindNoOrganization  ErrorKind = "no organization"
	KindNoSpreadsheetID ErrorKind = "no spreadsheet id"
	KindNoMembership    ErrorKind = "no user_organization"
	KindNoUser          ErrorKind = "no user"
	KindUnknown         ErrorKind = "unknown"
)

// Error is a tagged failure with structured context.
type Error struct {
	Kind         ErrorKind
	Organization string
	Key          string
	Err          error
}

// NewError builds a tagged error.
func NewError(kind ErrorKind, organization, key string, err error) *Error {
	return &Error{Kind: kind, Organization: organization, Key: key, Err: err}
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Organization != "" {
		msg += fmt.Sprintf(" (organization=%s", e.Organization)
		if e.Key != "" {
			msg += fmt.Sprintf(", key=%s", e.Key)
		}
		msg += ")"
	} else if e.Key != "" {
		msg += fmt.Sprintf(" (key=%s)", e.Key)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// =============================================================================
// SENTINELS - Use with errors.Is()
// =============================================================================

var (
	ErrNoParams        = &Error{Kind: KindNoParams}
	ErrWrongUser       = &Error{Kind: KindWrongUser}
	ErrNotAdmin        = &Error{Kind: KindNotAdmin}
	ErrNotAuthorized   = &Error{Kind: KindNotAuthorized}
	ErrNoOrganization  = &Error{Kind: KindNoOrganization}
	ErrNoSpreadsheetID = &Error{Kind: KindNoSpreadsheetID}
	ErrNoMembership    = &Error{Kind: KindNoMembership}
	ErrNoUser          = &Error{Kind: KindNoUser}
)

// Plain sentinels for store and validation failures outside the taxonomy.
var (
	ErrInvalidEvent       = errors.New("invalid event")
	ErrEventNotFound      = errors.New("event not found")
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrOrganizationExists = errors.New("organization with this key already exists")
	ErrAlreadyMember      = errors.New("already a member of this organization")
	ErrInvalidRole        = errors.New("invalid role")
)

// KindOf maps any error onto the closed set. nil maps to "".
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsAuthError reports failures of the admin precondition or of spreadsheet access.
func IsAuthError(err error) bool {
	switch KindOf(err) {
	case KindWrongUser, KindNotAdmin, KindNotAuthorized:
		return true
	}
	return false
}

// IsClientError reports failures caused by the caller's input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNoParams) ||
		errors.Is(err, ErrInvalidEvent) ||
		errors.Is(err, ErrInvalidRole) ||
		errors.Is(err, ErrOrganizationExists) ||
		errors.Is(err, ErrAlreadyMember)
}

// IsNotFound reports referential-integrity failures.
func IsNotFound(err error) bool {
	switch KindOf(err) {
	case KindNoOrganization, KindNoSpreadsheetID, KindNoMembership, KindNoUser:
		return true
	}
	return errors.Is(err, ErrEventNotFound) || errors.Is(err, ErrInvitationNotFound)
}
