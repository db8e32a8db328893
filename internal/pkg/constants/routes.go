package constants

// Static route constants
const (
	HealthRoute         = "/up"
	BylCheckoutRoute    = "/byl-checkout"
	BylWebhookRoute     = "/byl-webhook"
	ConnectGoogleRoute  = "/connect/google"
	GoogleCallbackRoute = "/connect/google/callback"
)
