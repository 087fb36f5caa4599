package models

// ScopeInfo describes one provider scope for status rendering.
type ScopeInfo struct {
	Scope       string `json:"scope"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// ScopeCatalog is the static reference list of known scopes per provider.
// It is consumed only by the status projection, never by control flow.
var ScopeCatalog = map[string][]ScopeInfo{
	"google": {
		{Scope: "openid", Description: "OpenID Connect identity", Required: true},
		{Scope: "email", Description: "Primary email address", Required: true},
		{Scope: "profile", Description: "Basic profile information", Required: false},
		{Scope: "https://www.googleapis.com/auth/contacts.readonly", Description: "Read-only access to contacts", Required: false},
	},
	"github": {
		{Scope: "read:user", Description: "Read user profile data", Required: true},
		{Scope: "user:email", Description: "Read user email addresses", Required: true},
		{Scope: "repo", Description: "Full repository access", Required: false},
	},
	"linkedin": {
		{Scope: "openid", Description: "OpenID Connect identity", Required: true},
		{Scope: "profile", Description: "Member profile", Required: true},
		{Scope: "email", Description: "Member email address", Required: false},
		{Scope: "w_member_social", Description: "Post on the member's behalf", Required: false},
	},
}

// RequiredScopes returns the catalog's required scopes for a provider.
// Unknown providers yield an empty list.
func RequiredScopes(provider string) []string {
	var required []string
	for _, info := range ScopeCatalog[provider] {
		if info.Required {
			required = append(required, info.Scope)
		}
	}
	return required
}

// DescribeScopes returns catalog entries for the given scopes, falling back
// to a bare entry for scopes the catalog does not know about.
func DescribeScopes(provider string, scopes []string) []ScopeInfo {
	known := make(map[string]ScopeInfo)
	for _, info := range ScopeCatalog[provider] {
		known[info.Scope] = info
	}

	out := make([]ScopeInfo, 0, len(scopes))
	for _, s := range scopes {
		if info, ok := known[s]; ok {
			out = append(out, info)
			continue
		}
		out = append(out, ScopeInfo{Scope: s})
	}
	return out
}
