package contact

import (
	"time"

	"github.com/google/uuid"
)

var ServiceInterests = []string{"mailbox", "shipping", "printing", "notary", "other"}

type Inquiry struct {
	ID              uuid.UUID `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	Email           string    `db:"email" json:"email"`
	Phone           string    `db:"phone" json:"phone,omitempty"`
	ServiceInterest string    `db:"service_interest" json:"service_interest,omitempty"`
	Message         string    `db:"message" json:"message"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}
