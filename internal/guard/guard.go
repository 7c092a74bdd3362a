// Package guard decides what a navigation request shows: the destination, a
// redirect, or a block. It never errors; denial is an outcome.
package guard

import (
	"github.com/frahmantamala/sss-portal/internal/permission"
)

// Session is the read-only view of a client session the guard consults.
type Session interface {
	IsLoading() bool
	Authenticated() bool
	IsFirstTimeUser() bool
	IsAdmin() bool
	HasPermission(module, action string) bool
}

type Kind string

const (
	Render   Kind = "RENDER"
	Redirect Kind = "REDIRECT"
	Block    Kind = "BLOCK"
)

// Well-known views, reasons and paths.
const (
	ViewLoading   = "loading"
	ViewFirstTime = "first-time-welcome"
	ViewNotFound  = "not-found"
	ViewLogin     = "login"
	ReasonDenied  = "access-denied"
	LoginPath     = "/login"
	LandingPath   = "/dashboard"
	AdminPath     = "/admin"
)

type Outcome struct {
	Kind Kind `json:"kind"`
	// View is what to render for Render outcomes.
	View string `json:"view,omitempty"`
	// Target is where to go for Redirect outcomes.
	Target string `json:"target,omitempty"`
	// ReturnTo is the originally requested location, kept across the
	// redirect to sign-in.
	ReturnTo string `json:"return_to,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Destination is a navigable location and what it requires.
type Destination struct {
	Name string
	Path string
	// Required is the permission the destination declares, if any.
	Required *permission.Pair
}

// Evaluate applies the ordered rules; the first match wins.
func Evaluate(s Session, dest Destination) Outcome {
	if s == nil {
		return Outcome{Kind: Redirect, Target: LoginPath, ReturnTo: dest.Path}
	}
	if s.IsLoading() {
		return Outcome{Kind: Render, View: ViewLoading}
	}
	if !s.Authenticated() {
		return Outcome{Kind: Redirect, Target: LoginPath, ReturnTo: dest.Path}
	}
	admin := s.IsAdmin()
	if s.IsFirstTimeUser() && !admin && dest.Path != LandingPath {
		return Outcome{Kind: Render, View: ViewFirstTime}
	}
	if dest.Required != nil && !admin && !s.HasPermission(string(dest.Required.Module), string(dest.Required.Action)) {
		return Outcome{Kind: Block, Reason: ReasonDenied}
	}
	return Outcome{Kind: Render, View: dest.Name}
}
