package auth

// Known OAuth scopes used by the API.
const (
	ScopeRecommendationsRead = "recommendations:read"
	ScopeEventsWrite         = "events:write"
	ScopeModelsAdmin         = "models:admin"
)
