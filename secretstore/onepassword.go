package secretstore

import (
	"context"
	"errors"
	"fmt"
	"os"

	opconnect "github.com/1Password/connect-sdk-go/connect"
	"github.com/1Password/connect-sdk-go/onepassword"
)

func init() {
	Register(Backend{
		Type:           "onepassword",
		Description:    "1Password Connect server",
		Factory:        newOnePassword,
		RequiredFields: []string{"connect_host"},
		OptionalFields: []string{"connect_token", "vault_id", "vault"},
	})
}

const onePasswordValueLabel = "value"

type onePassword struct {
	client  opconnect.Client
	vaultID string
}

func newOnePassword(cfg BackendConfig) (Store, error) {
	host, err := cfg.requireExtra("connect_host")
	if err != nil {
		return nil, err
	}
	token := os.Getenv("OP_CONNECT_TOKEN")
	if t := cfg.extraString("connect_token"); t != "" {
		token = t
	}
	if token == "" {
		return nil, errors.New("onepassword backend requires OP_CONNECT_TOKEN env or connect_token in config")
	}
	client := opconnect.NewClient(host, token)

	vaultID := cfg.extraString("vault_id")
	if vaultID == "" {
		title := cfg.extraString("vault")
		if title == "" {
			title = "Private"
		}
		v, err := client.GetVaultByTitle(title)
		if err != nil {
			return nil, fmt.Errorf("resolve 1password vault %s: %w", title, err)
		}
		vaultID = v.ID
	}
	return &onePassword{client: client, vaultID: vaultID}, nil
}

func passwordField(item *onepassword.Item) (*onepassword.ItemField, bool) {
	for _, f := range item.Fields {
		if f.Label == onePasswordValueLabel || f.Purpose == "PASSWORD" {
			return f, true
		}
	}
	return nil, false
}

func (s *onePassword) Get(_ context.Context, name string) (string, error) {
	item, err := s.client.GetItemByTitle(name, s.vaultID)
	if err != nil {
		return "", fmt.Errorf("1password get %s: %w", name, err)
	}
	f, ok := passwordField(item)
	if !ok {
		return "", fmt.Errorf("1password item %s has no value field", name)
	}
	return f.Value, nil
}

// Put updates the item titled name when it exists, otherwise creates it.
func (s *onePassword) Put(_ context.Context, name, value string) error {
	item := onepassword.Item{
		Title:    name,
		Category: onepassword.Password,
		Vault:    onepassword.ItemVault{ID: s.vaultID},
		Fields: []*onepassword.ItemField{
			{
				Label:   onePasswordValueLabel,
				Type:    "CONCEALED",
				Value:   value,
				Purpose: "PASSWORD",
			},
		},
	}
	existing, err := s.client.GetItemByTitle(name, s.vaultID)
	if err == nil {
		item.ID = existing.ID
		if _, err := s.client.UpdateItem(&item, s.vaultID); err != nil {
			return fmt.Errorf("1password update %s: %w", name, err)
		}
		return nil
	}
	if _, err := s.client.CreateItem(&item, s.vaultID); err != nil {
		return fmt.Errorf("1password create %s: %w", name, err)
	}
	return nil
}
