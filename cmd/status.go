package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"sinkguard/internal/config"
)

type statusResponse struct {
	IsRunning      bool   `json:"isRunning"`
	IsBlocking     bool   `json:"isBlocking"`
	DomainsInList  int    `json:"domainsInList"`
	QueriesSeen    uint64 `json:"queriesSeen"`
	QueriesBlocked uint64 `json:"queriesBlocked"`
	QueriesAllowed uint64 `json:"queriesAllowed"`
	BlockingMethod string `json:"blockingMethod"`
	Uptime         string `json:"uptime"`
}

func controlBaseURL(opts *Options) (string, error) {
	cfg, err := config.LoadConfig(opts.ConfigFile)
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	return fmt.Sprintf("http://127.0.0.1:%d", cfg.Control.Port), nil
}

func runStatus(opts *Options) error {
	base, err := controlBaseURL(opts)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(base + "/status")
	if err != nil {
		return fmt.Errorf("sinkguard does not appear to be running: %w", err)
	}
	defer resp.Body.Close()

	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("decode status response: %w", err)
	}

	fmt.Printf("running:          %v\n", status.IsRunning)
	fmt.Printf("blocking:         %v\n", status.IsBlocking)
	fmt.Printf("domains in list:  %d\n", status.DomainsInList)
	fmt.Printf("queries seen:     %d\n", status.QueriesSeen)
	fmt.Printf("queries blocked:  %d\n", status.QueriesBlocked)
	fmt.Printf("queries allowed:  %d\n", status.QueriesAllowed)
	fmt.Printf("blocking method:  %s\n", status.BlockingMethod)
	fmt.Printf("uptime:           %s\n", status.Uptime)
	return nil
}

func runToggle(opts *Options, enable bool) error {
	base, err := controlBaseURL(opts)
	if err != nil {
		return err
	}

	body, err := json.Marshal(map[string]bool{"enable": enable})
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Post(base+"/toggle", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("sinkguard does not appear to be running: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("toggle request failed with status %d", resp.StatusCode)
	}

	var result map[string]bool
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode toggle response: %w", err)
	}
	fmt.Printf("blocking is now: %v\n", result["isBlocking"])
	return nil
}
