package middleware

import (
	"net/http"

	"github.com/MrEthical07/authstate"
)

// RequireSession admits only callers whose identity and profile are both
// present.
func RequireSession(facade *authstate.Facade, loginPath string) func(http.Handler) http.Handler {
	return Guard(facade, Options{LoginPath: loginPath, RequireProfile: true})
}

// RequireIdentity admits signed-in callers even while their profile is
// missing. Handlers must check the snapshot before reading the profile.
func RequireIdentity(facade *authstate.Facade, loginPath string) func(http.Handler) http.Handler {
	return Guard(facade, Options{LoginPath: loginPath})
}
