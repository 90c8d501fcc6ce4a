package secretstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

func init() {
	Register(Backend{
		Type:           "doppler",
		Description:    "Doppler SecretOps Platform",
		Factory:        newDoppler,
		RequiredFields: []string{"project", "config"},
		OptionalFields: []string{"token", "api_url"},
	})
}

const dopplerAPIBase = "https://api.doppler.com"

type doppler struct {
	baseURL string
	token   string
	project string
	config  string
	client  *http.Client
}

func newDoppler(cfg BackendConfig) (Store, error) {
	project, err := cfg.requireExtra("project")
	if err != nil {
		return nil, err
	}
	config, err := cfg.requireExtra("config")
	if err != nil {
		return nil, err
	}
	token := os.Getenv("DOPPLER_TOKEN")
	if t := cfg.extraString("token"); t != "" {
		token = t
	}
	if token == "" {
		return nil, errors.New("doppler backend requires DOPPLER_TOKEN env or token in config")
	}
	base := dopplerAPIBase
	if u := cfg.extraString("api_url"); u != "" {
		base = strings.TrimSuffix(u, "/")
	}
	return &doppler{
		baseURL: base,
		token:   token,
		project: project,
		config:  config,
		client:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (s *doppler) do(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, error) {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		payload = bytes.NewReader(raw)
	}
	u := s.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, payload)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(s.token, "")
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return s.client.Do(req)
}

func (s *doppler) Get(ctx context.Context, name string) (string, error) {
	query := url.Values{
		"project": {s.project},
		"config":  {s.config},
		"name":    {name},
	}
	resp, err := s.do(ctx, http.MethodGet, "/v3/configs/config/secret", query, nil)
	if err != nil {
		return "", fmt.Errorf("doppler get %s: %w", name, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("doppler %s: %w", name, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("doppler get %s returned status %d", name, resp.StatusCode)
	}

	var result struct {
		Value struct {
			Raw string `json:"raw"`
		} `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("doppler parse response: %w", err)
	}
	return result.Value.Raw, nil
}

func (s *doppler) Put(ctx context.Context, name, value string) error {
	body := map[string]any{
		"project": s.project,
		"config":  s.config,
		"secrets": map[string]string{name: value},
	}
	resp, err := s.do(ctx, http.MethodPost, "/v3/configs/config/secrets", nil, body)
	if err != nil {
		return fmt.Errorf("doppler put %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("doppler put %s returned status %d", name, resp.StatusCode)
	}
	return nil
}
