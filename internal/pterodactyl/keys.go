package pterodactyl

import (
	"context"
	"fmt"

	"github.com/systmms/pterokeys/pkg/rotation"
)

// DefaultKeyDescription labels keys created by KeyService.
const DefaultKeyDescription = "pterokeys"

// KeyService mints client API keys for panel accounts.
type KeyService struct {
	client      *Client
	description string
	allowedIPs  []string
}

// NewKeyService creates a KeyService. An empty description falls back to
// DefaultKeyDescription.
func NewKeyService(client *Client, description string, allowedIPs []string) *KeyService {
	if description == "" {
		description = DefaultKeyDescription
	}
	return &KeyService{
		client:      client,
		description: description,
		allowedIPs:  allowedIPs,
	}
}

// CreateClientAPIKey creates a key for the account's Pterodactyl user and
// returns it in full. Panel refusals and incomplete responses wrap
// rotation.ErrCouldNotCreateKey; transport and server errors are returned as is.
func (s *KeyService) CreateClientAPIKey(ctx context.Context, account rotation.Account) (string, error) {
	key, err := s.client.CreateUserAPIKey(ctx, account.PanelUserID, s.description, s.allowedIPs)
	if err != nil {
		if isRefusal(err) {
			return "", fmt.Errorf("%w: %v", rotation.ErrCouldNotCreateKey, err)
		}
		return "", err
	}

	if key.Identifier == "" || key.SecretToken == "" {
		return "", fmt.Errorf("%w: panel response did not include the key", rotation.ErrCouldNotCreateKey)
	}

	return key.Token(), nil
}
