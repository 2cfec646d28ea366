package auth

import (
	"errors"
	"net/http"
)

var (
	ErrInvalidCredential = errors.New("auth: invalid credential")
	ErrUserNotFound      = errors.New("auth: user not found")
	ErrForbidden         = errors.New("auth: forbidden")
	ErrEmailTaken        = errors.New("auth: email already registered")

	errMissingSecret = errors.New("auth: signing secret is not configured")
)

// DenialKind classifies why a gate rejected a request.
type DenialKind int

const (
	KindInvalidCredential DenialKind = iota + 1
	KindNotFound
	KindForbidden
)

// Denial reasons.
const (
	ReasonMissingCredential = "missing_credential"
	ReasonMalformed         = "malformed"
	ReasonExpired           = "expired"
	ReasonBadSignature      = "bad_signature"
	ReasonUnknownUser       = "unknown_user"
	ReasonDeactivated       = "deactivated"
	ReasonRoleUnknown       = "role_unknown"
	ReasonResourceDenied    = "resource_denied"
	ReasonActionDenied      = "action_denied"
)

func (k DenialKind) String() string {
	switch k {
	case KindInvalidCredential:
		return "invalid_credential"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// Status is the HTTP status a denial of this kind surfaces as.
func (k DenialKind) Status() int {
	if k == KindNotFound {
		return http.StatusNotFound
	}
	return http.StatusForbidden
}

func (k DenialKind) sentinel() error {
	switch k {
	case KindInvalidCredential:
		return ErrInvalidCredential
	case KindNotFound:
		return ErrUserNotFound
	default:
		return ErrForbidden
	}
}

// Denial is the rejection produced by any stage of the gate.
type Denial struct {
	Kind   DenialKind
	Reason string
	Err    error
}

func (d *Denial) Error() string {
	msg := d.Kind.sentinel().Error() + " (" + d.Reason + ")"
	if d.Err != nil {
		msg += ": " + d.Err.Error()
	}
	return msg
}

// Is matches the sentinel for the denial kind.
func (d *Denial) Is(target error) bool {
	return target == d.Kind.sentinel()
}

func (d *Denial) Unwrap() error { return d.Err }

// AsDenial extracts a *Denial from err.
func AsDenial(err error) (*Denial, bool) {
	var d *Denial
	if errors.As(err, &d) {
		return d, true
	}
	return nil, false
}

func deny(kind DenialKind, reason string, cause error) *Denial {
	return &Denial{Kind: kind, Reason: reason, Err: cause}
}
