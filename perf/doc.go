// Package perf runs volley load tests from Go code.
//
// It is the programmatic counterpart of `volley run`: load a run file (or
// build a Config in code), create a Runner and call Run. The returned
// Result is the same document the CLI prints with --json.
//
// # Quick Start
//
//	cfg, err := perf.LoadConfig("coffee.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := perf.RunTest(context.Background(), cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("Requests: %d\n", result.Snapshot.TotalRequests)
//	fmt.Printf("P95: %v\n", result.Snapshot.Latency.P95)
//	fmt.Printf("Passed: %v\n", result.Passed)
//
// # Watching a run
//
// Runner.Start returns as soon as the virtual users are scheduled. The
// handle's Snapshot can be polled while the run is active:
//
//	h, err := runner.Start(ctx)
//	...
//	for {
//	    select {
//	    case <-h.Done():
//	        return h.Result()
//	    case <-time.After(time.Second):
//	        fmt.Println(h.Snapshot().TotalRequests)
//	    }
//	}
//
// # Reports
//
// Report renders a result as the grouped text report; HTML writes the
// standalone HTML report.
package perf
