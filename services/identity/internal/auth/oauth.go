package auth

// Provider identifies an OAuth identity provider. Supplemented feature
// (SPEC_FULL.md §10): spec.md's User entity is silent, not prohibitive,
// on additional login methods, and original_source's auth-service
// carries Google/Facebook identity columns.
type Provider string

const (
	ProviderGoogle   Provider = "google"
	ProviderFacebook Provider = "facebook"
)

// OAuthUser is the normalized identity returned by an OAuth provider
// after the caller has already exchanged the authorization code.
type OAuthUser struct {
	Provider  Provider
	ID        string
	Email     string
	FirstName string
	LastName  string
	Verified  bool
}
