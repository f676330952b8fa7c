package prompts

import "fmt"

// AuthMode is how a request proved its identity.
type AuthMode int

const (
	// AuthAnonymous carries no credentials.
	AuthAnonymous AuthMode = iota
	// AuthSession is a short-lived login token.
	AuthSession
	// AuthAPIKey is a long-lived API key.
	AuthAPIKey
)

func (m AuthMode) String() string {
	switch m {
	case AuthSession:
		return "session"
	case AuthAPIKey:
		return "api_key"
	default:
		return "anonymous"
	}
}

// Requester identifies who is asking. The zero value is anonymous.
type Requester struct {
	UserID string
	Mode   AuthMode
}

// Anonymous returns a requester with no identity.
func Anonymous() Requester { return Requester{} }

// Session returns a requester authenticated by a login token.
func Session(userID string) Requester { return Requester{UserID: userID, Mode: AuthSession} }

// APIKey returns a requester authenticated by an API key.
func APIKey(userID string) Requester { return Requester{UserID: userID, Mode: AuthAPIKey} }

// Authenticated reports whether the requester has an identity.
func (r Requester) Authenticated() bool {
	return r.Mode != AuthAnonymous && r.UserID != ""
}

// Filter decides which prompts a requester may read. It is the only place
// visibility rules live; every read path goes through it.
type Filter struct {
	mode   AuthMode
	userID string
}

// ResolveFilter maps a requester to its read filter. A session or API-key
// mode without a user id degrades to anonymous.
func ResolveFilter(r Requester) Filter {
	if !r.Authenticated() {
		return Filter{mode: AuthAnonymous}
	}
	return Filter{mode: r.Mode, userID: r.UserID}
}

// Mode returns the effective auth mode of the filter.
func (f Filter) Mode() AuthMode { return f.mode }

// Allows reports whether p is visible.
func (f Filter) Allows(p *Prompt) bool {
	if p == nil {
		return false
	}
	switch f.mode {
	case AuthSession:
		return p.UserID == f.userID
	case AuthAPIKey:
		return p.UserID == f.userID || p.IsPublic
	default:
		return p.IsPublic
	}
}

// Clause renders the filter as a SQL predicate over the prompts table
// aliased as alias. Placeholders use '?' and must be rebound.
func (f Filter) Clause(alias string) (string, []any) {
	switch f.mode {
	case AuthSession:
		return fmt.Sprintf("%s.user_id = ?", alias), []any{f.userID}
	case AuthAPIKey:
		return fmt.Sprintf("(%s.user_id = ? OR %s.is_public = ?)", alias, alias), []any{f.userID, true}
	default:
		return fmt.Sprintf("%s.is_public = ?", alias), []any{true}
	}
}
