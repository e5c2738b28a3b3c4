package test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"github.com/sirupsen/logrus"
)

// ReadLoadTestConfig holds configuration for decryption read load testing.
type ReadLoadTestConfig struct {
	GatewayURL          string
	Account             string
	Container           string
	Object              string
	NumWorkers          int
	Duration            time.Duration
	QPS                 int
	BaselineFile        string  // File to store/load baseline metrics
	RegressionThreshold float64 // Max allowed regression percentage
}

// ReadTestScenario defines a single read request shape against the gateway.
type ReadTestScenario struct {
	Name         string
	Method       string
	PathSuffix   string // appended to /v1/<account>/<container>
	Override     bool   // send the crypto override flag
	ExpectedCode int
}

// LoadTestMetrics holds comprehensive metrics for regression tracking.
type LoadTestMetrics struct {
	Timestamp          time.Time     `json:"timestamp"`
	TestName           string        `json:"test_name"`
	Duration           time.Duration `json:"duration"`
	TotalRequests      int64         `json:"total_requests"`
	SuccessfulRequests int64         `json:"successful_requests"`
	FailedRequests     int64         `json:"failed_requests"`
	P50Latency         time.Duration `json:"p50_latency"`
	P95Latency         time.Duration `json:"p95_latency"`
	P99Latency         time.Duration `json:"p99_latency"`
	AvgLatency         time.Duration `json:"avg_latency"`
	MinLatency         time.Duration `json:"min_latency"`
	MaxLatency         time.Duration `json:"max_latency"`
	Throughput         float64       `json:"throughput_req_per_sec"`
	TotalBytesReceived int64         `json:"total_bytes_received"`
	ErrorRate          float64       `json:"error_rate"`
	ReadSpecific       *ReadMetrics  `json:"read_specific,omitempty"`
}

// ReadMetrics holds decryption-read specific counters.
type ReadMetrics struct {
	ObjectGets        int64 `json:"object_gets"`
	ObjectHeads       int64 `json:"object_heads"`
	ContainerListings int64 `json:"container_listings"`
	OverrideReads     int64 `json:"override_reads"`
	MissingObjects    int64 `json:"missing_objects"`
}

// RegressionResult holds the result of regression analysis.
type RegressionResult struct {
	TestName              string
	BaselineMetrics       *LoadTestMetrics
	CurrentMetrics        *LoadTestMetrics
	LatencyRegression     float64 // Percentage change in latency
	ThroughputRegression  float64 // Percentage change in throughput
	ErrorRateRegression   float64 // Percentage-point change in error rate
	SignificantRegression bool
	Details               []string
}

// DefaultReadScenarios returns the standard read mix for a decryption gateway:
// full object reads, metadata-only reads, container listings, overridden
// passthrough reads and a miss.
func DefaultReadScenarios(object string) []ReadTestScenario {
	return []ReadTestScenario{
		{
			Name:         "object_get",
			Method:       http.MethodGet,
			PathSuffix:   "/" + object,
			ExpectedCode: http.StatusOK,
		},
		{
			Name:         "object_head",
			Method:       http.MethodHead,
			PathSuffix:   "/" + object,
			ExpectedCode: http.StatusOK,
		},
		{
			Name:         "container_listing",
			Method:       http.MethodGet,
			PathSuffix:   "",
			ExpectedCode: http.StatusOK,
		},
		{
			Name:         "override_get",
			Method:       http.MethodGet,
			PathSuffix:   "/" + object,
			Override:     true,
			ExpectedCode: http.StatusOK,
		},
		{
			Name:         "missing_object",
			Method:       http.MethodGet,
			PathSuffix:   "/" + object + "-does-not-exist",
			ExpectedCode: http.StatusNotFound,
		},
	}
}

// RunReadLoadTest runs the decryption read load test.
func RunReadLoadTest(config ReadLoadTestConfig, logger *logrus.Logger) (*LoadTestMetrics, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}

	logger.WithFields(logrus.Fields{
		"workers":  config.NumWorkers,
		"duration": config.Duration,
		"qps":      config.QPS,
		"account":  config.Account,
	}).Info("Starting read load test")

	scenarios := DefaultReadScenarios(config.Object)

	results, err := runReadLoadTestInternal(config, scenarios, logger)
	if err != nil {
		return nil, err
	}
	results.Timestamp = time.Now()
	results.TestName = "read_load_test"

	// Save metrics for regression tracking
	if config.BaselineFile != "" {
		if err := saveBaselineMetrics(results, config.BaselineFile); err != nil {
			logger.WithError(err).Warn("Failed to save baseline metrics")
		}
	}

	return results, nil
}

// runReadLoadTestInternal implements the core read load testing logic.
func runReadLoadTestInternal(config ReadLoadTestConfig, scenarios []ReadTestScenario, logger *logrus.Logger) (*LoadTestMetrics, error) {
	results := &LoadTestMetrics{
		MinLatency:   time.Hour,
		ReadSpecific: &ReadMetrics{},
	}

	var wg sync.WaitGroup
	var latencies []time.Duration
	var latenciesMu sync.Mutex

	// Calculate interval between requests
	interval := time.Second / time.Duration(config.QPS)
	if interval <= 0 {
		interval = time.Millisecond
	}

	stopChan := make(chan struct{})
	startTime := time.Now()

	containerURL := fmt.Sprintf("%s/v1/%s/%s", config.GatewayURL, config.Account, config.Container)

	// Start workers
	for i := 0; i < config.NumWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			client := &http.Client{Timeout: 60 * time.Second}
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			requestCount := int64(0)

			for {
				select {
				case <-stopChan:
					return
				case <-ticker.C:
					scenario := scenarios[requestCount%int64(len(scenarios))]

					reqStart := time.Now()
					req, err := http.NewRequest(scenario.Method, containerURL+scenario.PathSuffix, nil)
					if err != nil {
						atomic.AddInt64(&results.FailedRequests, 1)
						continue
					}
					if scenario.Override {
						req.Header.Set("X-Backend-Crypto-Override", "true")
					}

					resp, err := client.Do(req)
					latency := time.Since(reqStart)
					atomic.AddInt64(&results.TotalRequests, 1)

					if err != nil || resp.StatusCode != scenario.ExpectedCode {
						atomic.AddInt64(&results.FailedRequests, 1)
						if resp != nil {
							resp.Body.Close()
						}
						continue
					}

					atomic.AddInt64(&results.SuccessfulRequests, 1)

					// Read response body to measure data transfer
					n, _ := io.Copy(io.Discard, resp.Body)
					atomic.AddInt64(&results.TotalBytesReceived, n)
					resp.Body.Close()

					recordReadMetrics(results.ReadSpecific, scenario)

					// Record latency
					latenciesMu.Lock()
					latencies = append(latencies, latency)
					if latency < results.MinLatency {
						results.MinLatency = latency
					}
					if latency > results.MaxLatency {
						results.MaxLatency = latency
					}
					latenciesMu.Unlock()

					requestCount++
				}
			}
		}(i)
	}

	// Run for specified duration
	time.Sleep(config.Duration)
	close(stopChan)
	wg.Wait()

	results.Duration = time.Since(startTime)

	// Calculate statistics
	if len(latencies) > 0 {
		sortedLatencies := make([]time.Duration, len(latencies))
		copy(sortedLatencies, latencies)

		results.AvgLatency = calculateAverageLatency(latencies)
		results.P50Latency = calculatePercentileLatency(sortedLatencies, 0.5)
		results.P95Latency = calculatePercentileLatency(sortedLatencies, 0.95)
		results.P99Latency = calculatePercentileLatency(sortedLatencies, 0.99)
	}

	results.Throughput = float64(results.TotalRequests) / results.Duration.Seconds()
	if results.TotalRequests > 0 {
		results.ErrorRate = float64(results.FailedRequests) / float64(results.TotalRequests)
	}

	return results, nil
}

func recordReadMetrics(metrics *ReadMetrics, scenario ReadTestScenario) {
	switch scenario.Name {
	case "object_get":
		atomic.AddInt64(&metrics.ObjectGets, 1)
	case "object_head":
		atomic.AddInt64(&metrics.ObjectHeads, 1)
	case "container_listing":
		atomic.AddInt64(&metrics.ContainerListings, 1)
	case "override_get":
		atomic.AddInt64(&metrics.OverrideReads, 1)
	case "missing_object":
		atomic.AddInt64(&metrics.MissingObjects, 1)
	}
}

func calculateAverageLatency(latencies []time.Duration) time.Duration {
	if len(latencies) == 0 {
		return 0
	}

	var total time.Duration
	for _, lat := range latencies {
		total += lat
	}
	return total / time.Duration(len(latencies))
}

func calculatePercentileLatency(latencies []time.Duration, percentile float64) time.Duration {
	if len(latencies) == 0 {
		return 0
	}

	for i := 0; i < len(latencies)-1; i++ {
		for j := i + 1; j < len(latencies); j++ {
			if latencies[i] > latencies[j] {
				latencies[i], latencies[j] = latencies[j], latencies[i]
			}
		}
	}

	index := int(float64(len(latencies)-1) * percentile)
	return latencies[index]
}

// Baseline and regression tracking functions
func saveBaselineMetrics(metrics *LoadTestMetrics, filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(metrics, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}

func loadBaselineMetrics(filename string) (*LoadTestMetrics, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var metrics LoadTestMetrics
	if err := json.Unmarshal(data, &metrics); err != nil {
		return nil, err
	}

	return &metrics, nil
}

// AnalyzeRegression compares current metrics against baseline and detects regressions.
func AnalyzeRegression(current *LoadTestMetrics, baselineFile string, threshold float64) (*RegressionResult, error) {
	baseline, err := loadBaselineMetrics(baselineFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load baseline metrics: %w", err)
	}

	result := &RegressionResult{
		TestName:        current.TestName,
		BaselineMetrics: baseline,
		CurrentMetrics:  current,
		Details:         []string{},
	}

	// Calculate latency regression
	if baseline.AvgLatency > 0 {
		latencyChange := float64(current.AvgLatency-baseline.AvgLatency) / float64(baseline.AvgLatency) * 100
		result.LatencyRegression = latencyChange
		if math.Abs(latencyChange) > threshold {
			result.SignificantRegression = true
			result.Details = append(result.Details, fmt.Sprintf("Latency regression: %.2f%% (threshold: %.2f%%)", latencyChange, threshold))
		}
	}

	// Calculate throughput regression
	if baseline.Throughput > 0 {
		throughputChange := (current.Throughput - baseline.Throughput) / baseline.Throughput * 100
		result.ThroughputRegression = throughputChange
		if math.Abs(throughputChange) > threshold {
			result.SignificantRegression = true
			result.Details = append(result.Details, fmt.Sprintf("Throughput regression: %.2f%% (threshold: %.2f%%)", throughputChange, threshold))
		}
	}

	// Calculate error rate regression
	if baseline.ErrorRate >= 0 {
		errorRateChange := current.ErrorRate - baseline.ErrorRate
		result.ErrorRateRegression = errorRateChange * 100
		if errorRateChange > threshold/100 {
			result.SignificantRegression = true
			result.Details = append(result.Details, fmt.Sprintf("Error rate increased by %.2f percentage points", errorRateChange*100))
		}
	}

	return result, nil
}

// PrintLoadTestResults prints comprehensive load test results.
func PrintLoadTestResults(results *LoadTestMetrics) {
	fmt.Printf("\n=== %s Results ===\n", results.TestName)
	fmt.Printf("Timestamp: %s\n", results.Timestamp.Format(time.RFC3339))
	fmt.Printf("Duration: %v\n", results.Duration)
	fmt.Printf("Total Requests: %d\n", results.TotalRequests)
	fmt.Printf("Successful: %d\n", results.SuccessfulRequests)
	fmt.Printf("Failed: %d\n", results.FailedRequests)
	fmt.Printf("Error Rate: %.2f%%\n", results.ErrorRate*100)
	fmt.Printf("Throughput: %.2f req/s\n", results.Throughput)
	fmt.Printf("Latency (avg): %v\n", results.AvgLatency)
	fmt.Printf("Latency (p50): %v\n", results.P50Latency)
	fmt.Printf("Latency (p95): %v\n", results.P95Latency)
	fmt.Printf("Latency (p99): %v\n", results.P99Latency)
	fmt.Printf("Min Latency: %v\n", results.MinLatency)
	fmt.Printf("Max Latency: %v\n", results.MaxLatency)
	fmt.Printf("Total Bytes Received: %d\n", results.TotalBytesReceived)

	if results.ReadSpecific != nil {
		fmt.Printf("\n--- Read-Specific Metrics ---\n")
		fmt.Printf("Object GETs: %d\n", results.ReadSpecific.ObjectGets)
		fmt.Printf("Object HEADs: %d\n", results.ReadSpecific.ObjectHeads)
		fmt.Printf("Container Listings: %d\n", results.ReadSpecific.ContainerListings)
		fmt.Printf("Override Reads: %d\n", results.ReadSpecific.OverrideReads)
		fmt.Printf("Missing Objects: %d\n", results.ReadSpecific.MissingObjects)
	}

	fmt.Printf("==============================\n\n")
}

// PrintRegressionResult prints regression analysis results.
func PrintRegressionResult(result *RegressionResult) {
	fmt.Printf("\n=== Regression Analysis for %s ===\n", result.TestName)
	fmt.Printf("Significant Regression: %t\n", result.SignificantRegression)
	fmt.Printf("Latency Regression: %.2f%%\n", result.LatencyRegression)
	fmt.Printf("Throughput Regression: %.2f%%\n", result.ThroughputRegression)
	fmt.Printf("Error Rate Regression: %.2f percentage points\n", result.ErrorRateRegression)

	if len(result.Details) > 0 {
		fmt.Printf("\nDetails:\n")
		for _, detail := range result.Details {
			fmt.Printf("- %s\n", detail)
		}
	}

	fmt.Printf("=====================================\n\n")
}

// QueryPrometheusMetrics queries Prometheus for gateway metrics covering the
// load test window.
func QueryPrometheusMetrics(prometheusURL string, startTime, endTime time.Time) (map[string]interface{}, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, err
	}

	v1api := v1.NewAPI(client)

	// Query for key metrics during the test period
	queries := map[string]string{
		"http_request_duration_seconds": `histogram_quantile(0.95, rate(http_request_duration_seconds_bucket[5m]))`,
		"decryption_duration_seconds":   `histogram_quantile(0.95, rate(decryption_duration_seconds_bucket[5m]))`,
		"decryptions_per_second":        `sum(rate(decryptions_total[5m]))`,
		"etag_integrity_failures":       `sum(increase(etag_integrity_failures_total[5m]))`,
		"key_scope_fallbacks":           `sum(increase(key_scope_fallbacks_total[5m]))`,
		"memory_alloc_bytes":            `avg_over_time(memory_alloc_bytes[5m])`,
		"goroutines":                    `avg_over_time(goroutines_total[5m])`,
	}

	results := make(map[string]interface{})

	for name, query := range queries {
		value, warnings, err := v1api.Query(context.Background(), query, endTime)
		if err != nil {
			return nil, fmt.Errorf("failed to query %s: %w", name, err)
		}

		if len(warnings) > 0 {
			fmt.Printf("Warnings for query %s: %v\n", name, warnings)
		}

		// Extract scalar value
		if vector, ok := value.(model.Vector); ok && len(vector) > 0 {
			results[name] = float64(vector[0].Value)
		}
	}

	return results, nil
}
