package authstate

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventProfileFetch = "profile_fetch"
	auditEventSignOut      = "sign_out"
)

// ReportErrorCode is the stable classification attached to failed reports.
type ReportErrorCode string

const (
	reportErrProfileFetch ReportErrorCode = "profile_fetch_failed"
	reportErrSignOut      ReportErrorCode = "sign_out_failed"
	reportErrCanceled     ReportErrorCode = "canceled"
	reportErrInternal     ReportErrorCode = "internal_error"
)

func reportCode(err error) ReportErrorCode {
	var (
		ferr *ProfileFetchError
		serr *SignOutError
	)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return reportErrCanceled
	case errors.As(err, &ferr):
		return reportErrProfileFetch
	case errors.As(err, &serr):
		return reportErrSignOut
	default:
		return reportErrInternal
	}
}

// report pushes a structured event onto the audit channel. It never blocks
// the caller when DropIfFull is set and is a no-op when audit is disabled.
func (s *Store) report(ctx context.Context, eventType, identityID string, authEvent EventKind, err error) {
	if s.audit == nil {
		return
	}
	ev := AuditEvent{
		Timestamp:  time.Now().UTC(),
		EventType:  eventType,
		StoreID:    s.id,
		IdentityID: identityID,
		AuthEvent:  string(authEvent),
		Success:    err == nil,
	}
	if err != nil {
		ev.Error = string(reportCode(err))
		ev.Metadata = map[string]string{"detail": err.Error()}
	}
	s.audit.Emit(ctx, ev)
}
