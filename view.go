package authstate

// View is what a consuming page should do with a snapshot.
type View uint8

const (
	// ViewLoading: the initial determination is still pending; show a spinner.
	ViewLoading View = iota
	// ViewRedirect: resolved and signed out; navigate to the login page.
	ViewRedirect
	// ViewProfileLoading: signed in but no profile yet. This persists after a
	// failed create-or-fetch and may be shown as a retryable error.
	ViewProfileLoading
	// ViewReady: identity and profile are both present.
	ViewReady
)

func (v View) String() string {
	switch v {
	case ViewRedirect:
		return "redirect"
	case ViewProfileLoading:
		return "profile_loading"
	case ViewReady:
		return "ready"
	default:
		return "loading"
	}
}

// Decide maps a snapshot onto the consumer contract. Pending always wins so a
// consumer never redirects before the first event has been handled.
func Decide(s Snapshot) View {
	switch {
	case !s.Resolved():
		return ViewLoading
	case !s.Authenticated():
		return ViewRedirect
	case s.Status() == StatusAuthenticatedPendingProfile:
		return ViewProfileLoading
	default:
		return ViewReady
	}
}
