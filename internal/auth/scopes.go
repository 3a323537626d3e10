package auth

// Scopes understood by the API.
const (
	ScopeLocationsWrite = "locations:write"
	ScopeLocationsRead  = "locations:read"
	ScopeSettingsWrite  = "settings:write"
	ScopeHealthWrite    = "health:write"
)
