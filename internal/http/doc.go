// Package http is the transport collaborator used by virtual users.
//
// It provides:
//   - A shared, pooled client with functional options
//   - Detailed timing information (DNS, TCP, TLS, TTFB)
//   - A global request rate limit
//   - Categorized transport errors (timeout, connection refused, TLS, other)
//
// Basic Usage:
//
//	client := http.NewClient(http.DefaultClientConfig(),
//	    http.WithBaseURL("https://api.example.com"),
//	    http.WithHeader("User-Agent", "surge"),
//	)
//
//	resp, err := client.Send(ctx, http.NewRequest("GET", "/users"))
//	if err != nil {
//	    fmt.Println(http.CategoryOf(err))
//	}
//
// Thread Safety:
//
// Client is safe for concurrent use.
package http
