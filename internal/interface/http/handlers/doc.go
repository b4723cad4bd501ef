// Package handlers contains the reusable pieces of the admin API: health
// checks, API key verification and middleware.
//
// # Health Checks
//
//	checker := handlers.NewCompositeHealthChecker("0.1.0")
//	checker.AddCheck("postgres", handlers.NewPingCheck(conn))
//	checker.AddOptionalCheck("redis", handlers.NewPingCheck(cache))
//
// # API Keys
//
// Admin keys are never configured in clear text. Generate a hash with
//
//	command-centre apikey hash <key>
//
// and list the hashes in HTTP_API_KEY_HASHES.
package handlers
