// Package seller handles store registration and lookup.
package seller

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Sentinel errors returned by the seller repository and service.
var (
	ErrNotFound          = errors.New("seller not found")
	ErrSlugTaken         = errors.New("slug already taken")
	ErrAlreadyRegistered = errors.New("seller already registered")
	ErrSlugExhausted     = errors.New("no free slug")
)

// Kind distinguishes individuals (CPF) from companies (CNPJ).
type Kind string

const (
	KindIndividual Kind = "individual"
	KindCompany    Kind = "company"
)

// Address is the seller's business address.
type Address struct {
	Street       string
	Number       string
	Neighborhood string
	City         string
	State        string
	PostalCode   string
}

// Seller is a registered store.
type Seller struct {
	ID           int64
	Kind         Kind
	Name         string
	StoreName    string
	Slug         string
	Email        string
	Document     string
	Phone        string
	Address      Address
	PasswordHash []byte
	Active       bool
	CreatedAt    time.Time
}

// Repository persists sellers.
type Repository interface {
	// Create stores s and fills its ID and CreatedAt. It returns ErrSlugTaken
	// when the slug is in use and ErrAlreadyRegistered for a duplicate email
	// or document.
	Create(ctx context.Context, s *Seller) error
	GetBySlug(ctx context.Context, slug string) (*Seller, error)
	ListActive(ctx context.Context) ([]Seller, error)
}
