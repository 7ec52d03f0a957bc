package devauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
)

var (
	ErrDeviceNotFound    = errors.New("device not found")
	ErrNoNextSecret      = errors.New("no next secret to promote")
	ErrNextSecretPending = errors.New("next secret already issued")
)

// Credentials is the ordered pair of secrets a device may sign with.
//
// Rotation lifecycle:
//
//	IssueNext: Next = fresh secret (Current still signs)
//	Promote:   Current = Next, Next = old Current (devices not yet updated still pass)
//	Retire:    Next = "" (only Current signs)
type Credentials struct {
	Current string
	Next    string
}

// Active returns the secrets accepted for verification, Current first.
func (c Credentials) Active() []string {
	if c.Next == "" {
		return []string{c.Current}
	}
	return []string{c.Current, c.Next}
}

func (c Credentials) IssueNext(secret string) (Credentials, error) {
	if c.Next != "" {
		return c, ErrNextSecretPending
	}
	c.Next = secret
	return c, nil
}

func (c Credentials) Promote() (Credentials, error) {
	if c.Next == "" {
		return c, ErrNoNextSecret
	}
	return Credentials{Current: c.Next, Next: c.Current}, nil
}

func (c Credentials) Retire() Credentials {
	c.Next = ""
	return c
}

// NewSecret returns 32 random bytes, hex encoded.
func NewSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// CredentialStore persists a device's secrets. UpdateCredentials must apply fn atomically
// with respect to other rotations of the same device, and return ErrDeviceNotFound for
// an unknown key.
type CredentialStore interface {
	UpdateCredentials(ctx context.Context, deviceKey string, fn func(Credentials) (Credentials, error)) error
}

// IssueNext generates a new secret and stores it as the device's next secret.
func IssueNext(ctx context.Context, s CredentialStore, deviceKey string) (string, error) {
	secret, err := NewSecret()
	if err != nil {
		return "", err
	}
	err = s.UpdateCredentials(ctx, deviceKey, func(c Credentials) (Credentials, error) {
		return c.IssueNext(secret)
	})
	if err != nil {
		return "", err
	}
	return secret, nil
}

func Promote(ctx context.Context, s CredentialStore, deviceKey string) error {
	return s.UpdateCredentials(ctx, deviceKey, Credentials.Promote)
}

func Retire(ctx context.Context, s CredentialStore, deviceKey string) error {
	return s.UpdateCredentials(ctx, deviceKey, func(c Credentials) (Credentials, error) {
		return c.Retire(), nil
	})
}
