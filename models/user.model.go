package models

import (
	"time"
)

// DefaultClientEmail is shown for users that signed up without an email
const DefaultClientEmail = "no-email@unknown.com"

// Client is a customer account from the users collection
type Client struct {
	ID           string     `bson:"_id,omitempty" json:"id"`
	Email        string     `bson:"email" json:"email"`
	CreatedAt    *time.Time `bson:"createdAt,omitempty" json:"createdAt,omitempty"`
	LastMessaged *time.Time `bson:"lastMessaged,omitempty" json:"lastMessaged,omitempty"`
}

// Admin is the operator allowed into the dashboard
type Admin struct {
	Email        string
	PasswordHash string
}
