package ports

// AuthMetrics receives business counters from the application layer.
// Labels are coarse outcomes only.
type AuthMetrics interface {
	Registration(result string)
	Login(method, result string)
	OAuthCallback(provider, result string)
	TwoFactor(event, result string)
	TokenIssued(flow string)
}
