// Package gauth builds authorized HTTP clients for Google APIs.
package gauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	ScopeSheets = "https://www.googleapis.com/auth/spreadsheets"
	ScopeGmail  = "https://www.googleapis.com/auth/gmail.modify"
)

// HTTPClient reads a credentials file and returns a client for scopes.
// Service account keys impersonate subject when it is set (domain-wide
// delegation); any other credential type goes through the default
// credential parsing.
func HTTPClient(ctx context.Context, credentialsFile, subject string, scopes ...string) (*http.Client, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	return ClientFromJSON(ctx, data, subject, scopes...)
}

func ClientFromJSON(ctx context.Context, data []byte, subject string, scopes ...string) (*http.Client, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	if head.Type == "service_account" {
		cfg, err := google.JWTConfigFromJSON(data, scopes...)
		if err != nil {
			return nil, fmt.Errorf("service account credentials: %w", err)
		}
		cfg.Subject = subject
		return cfg.Client(ctx), nil
	}

	creds, err := google.CredentialsFromJSON(ctx, data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("google credentials: %w", err)
	}
	return oauth2.NewClient(ctx, creds.TokenSource), nil
}
