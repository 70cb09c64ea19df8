// Package profile stores sender profiles fetched from the messaging platform.
package profile

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrNotFound marks a sender with no stored profile.
var ErrNotFound = errors.New("profile not found")

// Record is one stored sender profile.
type Record struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	SenderID   string             `bson:"senderId" json:"sender_id"`
	FirstName  string             `bson:"firstName" json:"first_name"`
	LastName   string             `bson:"lastName" json:"last_name"`
	MiddleName string             `bson:"middleName,omitempty" json:"middle_name,omitempty"`
	Tenant     string             `bson:"tenant" json:"tenant"`
	Messenger  string             `bson:"messenger" json:"messenger"`
	CreatedAt  int64              `bson:"createdAt" json:"created_at"`
	UpdatedAt  int64              `bson:"updatedAt" json:"updated_at"`
}

// Repository persists sender profiles.
type Repository interface {
	Create(ctx context.Context, record Record) (Record, error)
	FindBySender(ctx context.Context, tenant, senderID string) (Record, error)
}
