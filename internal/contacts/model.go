// Package contacts keeps a registry of every WhatsApp user who has written to
// the gateway, so operators can broadcast to all of them.
package contacts

import (
	"context"
	"time"
)

type Contact struct {
	ID          string    `json:"id"`
	WaID        string    `json:"whatsappId"`
	PhoneNumber string    `json:"phoneNumber"`
	DisplayName string    `json:"pushName,omitempty"`
	Active      bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Store persists contacts. Register is an upsert keyed by WaID.
type Store interface {
	Register(ctx context.Context, c Contact) (Contact, error)
	List(ctx context.Context) ([]Contact, error)
	ListActive(ctx context.Context) ([]Contact, error)
}
