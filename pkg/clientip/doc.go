// Package clientip extracts the caller's IP address from HTTP requests.
//
// The billing API logs it with every request and with every rejected webhook
// delivery, which makes forged notifications traceable:
//
//	r.Use(clientip.Middleware())
//	log := logger.New(logger.WithContextExtractors(clientip.LoggerExtractor()))
package clientip
