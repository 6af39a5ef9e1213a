package api

import "github.com/sideruntime/sidesvc/internal/apperr"

// statusFor maps the closed error taxonomy (SPEC_FULL.md §7) onto HTTP
// status codes at the API boundary.
func statusFor(err error) int {
	switch {
	case apperr.Is(err, apperr.InvalidID), apperr.Is(err, apperr.MalformedScript),
		apperr.Is(err, apperr.InvalidReference), apperr.Is(err, apperr.TemplateRender),
		apperr.Is(err, apperr.TemplateResource), apperr.Is(err, apperr.BadLocator),
		apperr.Is(err, apperr.UnboundVariable):
		return 400
	case apperr.Is(err, apperr.NotFound):
		return 404
	case apperr.Is(err, apperr.AlreadyHeld):
		return 409
	case apperr.Is(err, apperr.Timeout):
		return 408
	case apperr.Is(err, apperr.NoCapacity), apperr.Is(err, apperr.GridUnreachable):
		return 503
	case apperr.Is(err, apperr.NoSuchSession):
		return 410
	case apperr.Is(err, apperr.AssertionFailed), apperr.Is(err, apperr.CommandFailed):
		return 422
	default:
		return 500
	}
}
