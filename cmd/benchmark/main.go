// Benchmark tool for testing decisiond against a labeled delinquency file.
//
// Usage:
//
//	go run cmd/benchmark/main.go -csv /path/to/portfolio.csv -url http://localhost:8080
//
// This tool:
//  1. Reads a portfolio CSV (loan attributes plus an optional expected action)
//  2. Rebuilds each loan's attempt history and submits batches to POST /decide
//  3. Compares the engine's action (STOP/RETRY/SCHEDULE) with the expected labels
//  4. Reports agreement, action distribution, latency and throughput
//
// Expected CSV columns (header, case-insensitive):
//
//	loan_id, bank, amount, overdue_days, attempts, last_status,
//	last_failed_message, last_attempt_days_ago, expected (optional)
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LoanRow is one row of the labeled portfolio file.
type LoanRow struct {
	LoanID             string
	Bank               string
	Amount             float64
	OverdueDays        int
	Attempts           int
	LastStatus         string
	LastFailedMessage  string
	LastAttemptDaysAgo int
	Expected           string // STOP, RETRY, SCHEDULE or empty
}

// wire types matching the decide endpoint

type loanPayload struct {
	LoanID      string  `json:"loan_id"`
	Bank        string  `json:"payment_method_bank,omitempty"`
	Amount      float64 `json:"total_amount_outstanding"`
	OverdueDays int     `json:"overdue_days"`
}

type txPayload struct {
	LoanID        string `json:"loan_id"`
	Status        string `json:"status"`
	FailedMessage string `json:"failed_message,omitempty"`
	CreatedAt     string `json:"created_at"`
}

type decideRequest struct {
	Loans        []loanPayload `json:"loans"`
	Transactions []txPayload   `json:"transactions"`
	Now          string        `json:"now"`
}

type decision struct {
	LoanID string `json:"loan_id"`
	Action string `json:"decision"`
	Reason struct {
		Code  string `json:"code"`
		Label string `json:"label"`
	} `json:"decision_reason"`
	Confidence float64 `json:"confidence"`
}

type decideResponse struct {
	Decisions []decision `json:"decisions"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TotalProcessed int64
	TotalErrors    int64
	TotalLabeled   int64
	TotalMatched   int64

	Stops     int64
	Retries   int64
	Schedules int64

	ProcessingTimeMs int64
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to portfolio CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "decisiond base URL")
	apiKey := flag.String("key", "", "API key for X-Api-Key header")
	limit := flag.Int("limit", 10000, "Maximum loans to process (0 = all)")
	batchSize := flag.Int("batch", 100, "Loans per decide request")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each mismatch")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/portfolio.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("=================================================================")
	fmt.Println("          DECISIOND BENCHMARK - Portfolio Replay")
	fmt.Println("=================================================================")
	fmt.Printf("\nCSV File:   %s\n", *csvPath)
	fmt.Printf("URL:        %s\n", *baseURL)
	fmt.Printf("Workers:    %d\n", *workers)
	fmt.Printf("Batch:      %d\n", *batchSize)
	fmt.Printf("Limit:      %d\n", *limit)
	fmt.Println()

	// Check decisiond is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: decisiond not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure decisiond is running:")
		fmt.Println("  go run cmd/decisiond/main.go")
		os.Exit(1)
	}
	fmt.Println("decisiond is healthy")

	// Read portfolio data
	fmt.Printf("\nReading portfolio from %s...\n", *csvPath)
	rows, err := readPortfolioCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d loans\n", len(rows))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(rows, *baseURL, *apiKey, *batchSize, *workers, *verbose)
	duration := time.Since(startTime)

	// Print results
	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readPortfolioCSV(path string, limit int) ([]LoanRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	// Read header
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	// Map column indices
	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}

	field := func(record []string, name string) string {
		idx, ok := colIndex[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var rows []LoanRow

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		loanID := field(record, "loan_id")
		if loanID == "" {
			continue
		}

		amount, _ := strconv.ParseFloat(field(record, "amount"), 64)
		overdueDays, _ := strconv.Atoi(field(record, "overdue_days"))
		attempts, _ := strconv.Atoi(field(record, "attempts"))
		lastAttemptAgo, _ := strconv.Atoi(field(record, "last_attempt_days_ago"))

		rows = append(rows, LoanRow{
			LoanID:             loanID,
			Bank:               field(record, "bank"),
			Amount:             amount,
			OverdueDays:        overdueDays,
			Attempts:           attempts,
			LastStatus:         field(record, "last_status"),
			LastFailedMessage:  field(record, "last_failed_message"),
			LastAttemptDaysAgo: lastAttemptAgo,
			Expected:           strings.ToUpper(field(record, "expected")),
		})

		if limit > 0 && len(rows) >= limit {
			break
		}
	}

	return rows, nil
}

// buildBatch converts rows into one decide request. The attempt history is
// reconstructed as evenly spaced failures ending at last_attempt_days_ago,
// with the final row carrying the last status and failure message.
func buildBatch(rows []LoanRow, now time.Time) decideRequest {
	req := decideRequest{Now: now.Format(time.RFC3339)}

	for _, row := range rows {
		req.Loans = append(req.Loans, loanPayload{
			LoanID:      row.LoanID,
			Bank:        row.Bank,
			Amount:      row.Amount,
			OverdueDays: row.OverdueDays,
		})

		for i := 0; i < row.Attempts; i++ {
			daysAgo := row.LastAttemptDaysAgo + (row.Attempts-1-i)*4
			tx := txPayload{
				LoanID:    row.LoanID,
				Status:    "failed",
				CreatedAt: now.AddDate(0, 0, -daysAgo).Format(time.RFC3339),
			}
			if i == row.Attempts-1 {
				if row.LastStatus != "" {
					tx.Status = row.LastStatus
				}
				tx.FailedMessage = row.LastFailedMessage
			}
			req.Transactions = append(req.Transactions, tx)
		}
	}

	return req
}

func runBenchmark(rows []LoanRow, baseURL, apiKey string, batchSize, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}
	now := time.Now().UTC()

	// Create work channel of batches
	work := make(chan []LoanRow, 10)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 30 * time.Second}

			for batch := range work {
				start := time.Now()
				result, err := decideBatch(client, baseURL, apiKey, buildBatch(batch, now))
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, int64(len(batch)))

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, int64(len(batch)))
					if verbose {
						fmt.Printf("ERROR: batch of %d -> %v\n", len(batch), err)
					}
					continue
				}

				expected := make(map[string]string, len(batch))
				for _, row := range batch {
					expected[row.LoanID] = row.Expected
				}

				for _, d := range result.Decisions {
					switch d.Action {
					case "STOP":
						atomic.AddInt64(&metrics.Stops, 1)
					case "RETRY":
						atomic.AddInt64(&metrics.Retries, 1)
					case "SCHEDULE":
						atomic.AddInt64(&metrics.Schedules, 1)
					}

					want := expected[d.LoanID]
					if want == "" {
						continue
					}
					atomic.AddInt64(&metrics.TotalLabeled, 1)
					if want == d.Action {
						atomic.AddInt64(&metrics.TotalMatched, 1)
					} else if verbose {
						fmt.Printf("MISMATCH %-12s | expected %-8s | got %-8s (%s, %.2f)\n",
							d.LoanID, want, d.Action, d.Reason.Code, d.Confidence)
					}
				}
			}
		}()
	}

	// Send work in batches
	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		work <- rows[start:end]
	}
	close(work)

	// Wait for completion
	wg.Wait()

	return metrics
}

func decideBatch(client *http.Client, baseURL, apiKey string, req decideRequest) (*decideResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/decide", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		httpReq.Header.Set("X-Api-Key", apiKey)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result decideResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n=================================================================")
	fmt.Println("                      BENCHMARK RESULTS")
	fmt.Println("=================================================================")

	fmt.Printf("\nDATASET\n")
	fmt.Printf("   Loans Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\nACTION DISTRIBUTION\n")
	decided := m.Stops + m.Retries + m.Schedules
	pct := func(n int64) float64 {
		if decided == 0 {
			return 0
		}
		return 100 * float64(n) / float64(decided)
	}
	fmt.Printf("   STOP:      %8d (%.2f%%)\n", m.Stops, pct(m.Stops))
	fmt.Printf("   RETRY:     %8d (%.2f%%)\n", m.Retries, pct(m.Retries))
	fmt.Printf("   SCHEDULE:  %8d (%.2f%%)\n", m.Schedules, pct(m.Schedules))

	if m.TotalLabeled > 0 {
		agreement := float64(m.TotalMatched) / float64(m.TotalLabeled)
		fmt.Printf("\nAGREEMENT WITH LABELS\n")
		fmt.Printf("   Labeled:    %d\n", m.TotalLabeled)
		fmt.Printf("   Matched:    %d\n", m.TotalMatched)
		fmt.Printf("   Agreement:  %.4f\n", agreement)
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		lps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Throughput:       %.2f loans/sec\n", lps)
	}

	fmt.Println()
}
