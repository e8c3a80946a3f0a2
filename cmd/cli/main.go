package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "auth":
		err = handleAuth(args)
	case "orders":
		err = handleOrders(args)
	case "absences":
		err = handleAbsences(args)
	case "users":
		err = handleUsers(args)
	case "catalog":
		err = showCatalog(newClient())
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(1)
	}
}

// client talks to the HTTP API with the stored session token
type client struct {
	base  string
	token string
	http  *http.Client
}

func newClient() *client {
	return &client{base: getAPIURL(), token: loadToken(), http: &http.Client{Timeout: 15 * time.Second}}
}

// apiError is a non-2xx answer from the server
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Status)
}

// call sends body as JSON and decodes a JSON answer into out when given
func (c *client) call(method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &apiError{Status: resp.StatusCode, Message: msg}
	}
	if out != nil && len(raw) > 0 {
		return json.Unmarshal(raw, out)
	}
	return nil
}

// Helper functions
func getAPIURL() string {
	if url := os.Getenv("FARMORDERS_API"); url != "" {
		return strings.TrimRight(url, "/")
	}
	return "http://localhost:8080/api"
}

func tokenFile() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".farmorders", "token")
}

func saveToken(token string) error {
	if err := os.MkdirAll(filepath.Dir(tokenFile()), 0700); err != nil {
		return err
	}
	return os.WriteFile(tokenFile(), []byte(token), 0600)
}

func loadToken() string {
	data, _ := os.ReadFile(tokenFile())
	return strings.TrimSpace(string(data))
}

func printUsage() {
	fmt.Print(`farmorders CLI

Usage:
  farmorders <command> [options]

Commands:
  auth       Session (login, logout, who, register, passwd)
  orders     Orders (list, show, create, accept, progress, submit, confirm, status, delete)
  absences   Absence requests (list, request, approve, reject)
  users      Members (list, create, delete, profile) - admin access required
  catalog    List orderable blocks
  help       Show this help message

Environment Variables:
  FARMORDERS_API    API endpoint (default: http://localhost:8080/api)

Examples:
  farmorders auth login -username steve -password secret
  farmorders orders list -available
  farmorders orders create -item wheat:10:dk -item carrots:5:kisten -start 2024-01-01 -deadline 2024-01-31
  farmorders orders progress <order-id> wheat 10
  farmorders absences request -start 2024-03-10 -end 2024-03-12 -reason holiday
`)
}
