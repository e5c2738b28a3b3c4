package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kenneth/swift-decryption-gateway/test"
)

func main() {
	var (
		gatewayURL     = flag.String("gateway-url", "http://localhost:8080", "Decryption gateway URL")
		account        = flag.String("account", "AUTH_loadtest", "Storage account")
		container      = flag.String("container", "loadtest", "Container name")
		object         = flag.String("object", "loadtest-object", "Object name")
		duration       = flag.Duration("duration", 30*time.Second, "Test duration")
		workers        = flag.Int("workers", 5, "Number of worker goroutines")
		qps            = flag.Int("qps", 25, "Queries per second per worker")
		baselineDir    = flag.String("baseline-dir", "testdata/baselines", "Directory for baseline files")
		threshold      = flag.Float64("threshold", 10.0, "Regression threshold percentage")
		prometheusURL  = flag.String("prometheus-url", "", "Prometheus URL for additional metrics")
		verbose        = flag.Bool("verbose", false, "Enable verbose logging")
		updateBaseline = flag.Bool("update-baseline", false, "Update baseline files instead of checking regression")
	)

	flag.Parse()

	// Setup logging
	logger := logrus.New()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	// Ensure baseline directory exists
	if err := os.MkdirAll(*baselineDir, 0755); err != nil {
		log.Fatalf("Failed to create baseline directory: %v", err)
	}

	fmt.Println("=== Swift Decryption Gateway Load Test Runner ===")
	fmt.Printf("Gateway URL: %s\n", *gatewayURL)
	fmt.Printf("Account: %s\n", *account)
	fmt.Printf("Duration: %v\n", *duration)
	fmt.Printf("Workers: %d\n", *workers)
	fmt.Printf("QPS per Worker: %d\n", *qps)
	fmt.Printf("Regression Threshold: %.1f%%\n", *threshold)
	if *prometheusURL != "" {
		fmt.Printf("Prometheus URL: %s\n", *prometheusURL)
	}
	fmt.Println()

	config := test.ReadLoadTestConfig{
		GatewayURL:          *gatewayURL,
		Account:             *account,
		Container:           *container,
		Object:              *object,
		NumWorkers:          *workers,
		Duration:            *duration,
		QPS:                 *qps,
		BaselineFile:        filepath.Join(*baselineDir, "read_load_test_baseline.json"),
		RegressionThreshold: *threshold,
	}

	startTime := time.Now()

	results, err := test.RunReadLoadTest(config, logger)
	if err != nil {
		log.Fatalf("Read load test failed: %v", err)
	}

	test.PrintLoadTestResults(results)

	// Query Prometheus if configured
	if *prometheusURL != "" {
		promMetrics, err := test.QueryPrometheusMetrics(*prometheusURL, startTime, time.Now())
		if err != nil {
			logger.WithError(err).Warn("Failed to query Prometheus metrics")
		} else {
			fmt.Println("--- Prometheus Metrics ---")
			for metric, value := range promMetrics {
				fmt.Printf("%s: %v\n", metric, value)
			}
			fmt.Println()
		}
	}

	// Handle baseline/regression logic
	if *updateBaseline {
		fmt.Println("Baseline updated for read load test")
		return
	}

	regression, err := test.AnalyzeRegression(results, config.BaselineFile, config.RegressionThreshold)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Println("No baseline found - run with --update-baseline to create one")
			return
		}
		log.Fatalf("Regression analysis failed: %v", err)
	}

	test.PrintRegressionResult(regression)

	if regression.SignificantRegression {
		fmt.Println("Significant regression detected in read load test")
		os.Exit(1)
	}

	fmt.Printf("Read load test passed (total time: %v)\n", time.Since(startTime))
}
