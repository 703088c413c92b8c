// Command test_integration runs a smoke test against a running server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"
)

func main() {
	baseURL := os.Getenv("EPISODEGRAPH_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	client := &http.Client{Timeout: 2 * time.Minute}

	fmt.Println("Starting Integration Test...")
	if !waitHealthy(client, baseURL) {
		fmt.Println("FAILED: server not healthy")
		os.Exit(1)
	}

	runID := fmt.Sprintf("smoke-%d", time.Now().Unix())

	fmt.Println("1. Ingesting Episodes...")
	payload := map[string]any{
		"episodes": []map[string]any{
			{"episode_id": runID + "-1", "content": "My name is Alice and I am a software engineer at Acme Corp.", "source": "smoke"},
			{"episode_id": runID + "-2", "content": "Alice lives in San Francisco and loves hiking.", "source": "smoke"},
		},
	}
	if _, ok := send(client, http.MethodPost, baseURL+"/episodes/bulk", payload); !ok {
		fmt.Println("FAILED: Ingest episodes")
		os.Exit(1)
	}
	fmt.Println("PASSED: Ingest episodes")

	fmt.Println("2. Searching Graph...")
	if _, ok := send(client, http.MethodGet, baseURL+"/search?q="+url.QueryEscape("Alice"), nil); !ok {
		fmt.Println("FAILED: Search")
		os.Exit(1)
	}
	fmt.Println("PASSED: Search")

	fmt.Println("3. Neighbors and Stats...")
	if _, ok := send(client, http.MethodGet, baseURL+"/entities/Alice/neighbors?max_hops=2", nil); !ok {
		fmt.Println("FAILED: Neighbors")
		os.Exit(1)
	}
	body, ok := send(client, http.MethodGet, baseURL+"/stats", nil)
	if !ok {
		fmt.Println("FAILED: Stats")
		os.Exit(1)
	}
	var stats struct {
		Episodes int64 `json:"episodes"`
	}
	if err := json.Unmarshal(body, &stats); err != nil || stats.Episodes < 2 {
		fmt.Printf("FAILED: expected at least 2 episodes, got %s\n", string(body))
		os.Exit(1)
	}
	fmt.Println("PASSED: Neighbors and Stats")
}

func waitHealthy(client *http.Client, baseURL string) bool {
	for i := 0; i < 10; i++ {
		resp, err := client.Get(baseURL + "/healthz")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return true
			}
		}
		time.Sleep(time.Second)
	}
	return false
}

func send(client *http.Client, method, target string, payload any) ([]byte, bool) {
	var body io.Reader
	if payload != nil {
		jsonBytes, _ := json.Marshal(payload)
		body = bytes.NewBuffer(jsonBytes)
	}

	req, err := http.NewRequest(method, target, body)
	if err != nil {
		fmt.Printf("Error creating request: %v\n", err)
		return nil, false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error sending request: %v\n", err)
		return nil, false
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("Request failed with status %d: %s\n", resp.StatusCode, string(respBody))
		return nil, false
	}

	fmt.Printf("Response: %s\n", string(respBody))
	return respBody, true
}
