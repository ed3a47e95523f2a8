// Package perf provides a load testing library for HTTP APIs.
//
// A test is a list of stages. Each stage moves the number of concurrent
// virtual users linearly from the previous target to its own over the stage
// duration. Every virtual user runs the iteration body in a loop, pausing
// between iterations, until the schedule ends or the user is retired.
//
// # Quick Start
//
//	cfg, _ := perf.LoadConfig("test.yaml")
//	result, _ := perf.RunTest(context.Background(), cfg)
//
//	fmt.Printf("Requests: %d\n", result.Metrics.Requests)
//	fmt.Printf("P95: %v\n", result.Metrics.Latency.P95)
//	fmt.Printf("Passed: %v\n", result.Passed)
//
// # Custom Iteration Bodies
//
// The configured requests can be replaced with code. Requests sent through
// the Iteration are timed and counted, and checks feed the checks metric:
//
//	body := func(ctx context.Context, it *perf.Iteration) error {
//	    resp, err := it.Send(ctx, perf.NewRequest("GET", "/health"))
//	    it.Check("status is 200", resp, perf.Status(200))
//	    return err
//	}
//	result, _ := perf.RunTest(ctx, cfg, perf.WithBody(body))
//
// # Reports
//
// WriteReport renders a result as text, JSON, YAML or JUnit XML.
package perf
