package seller

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"unicode"

	"github.com/go-faster/errors"
	"golang.org/x/crypto/bcrypt"
)

// ValidationError describes an invalid registration field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// RegisterRequest holds the input for registering a store.
type RegisterRequest struct {
	Kind      Kind
	Name      string
	StoreName string
	Email     string
	Document  string
	Phone     string
	Password  string
	Address   Address
}

// Config controls registration.
type Config struct {
	// SlugAttempts caps how many slug candidates are tried.
	SlugAttempts int
	BcryptCost   int
}

// SlugFilter reports whether a slug is already known to be taken. False
// positives only cost a skipped candidate.
type SlugFilter func(slug string) bool

// Option configures a Service.
type Option func(*Service)

// WithSlugFilter makes Register skip candidates the filter reports as taken.
func WithSlugFilter(f SlugFilter) Option {
	return func(s *Service) {
		s.taken = f
	}
}

// Service registers and looks up sellers.
type Service struct {
	repo  Repository
	cfg   Config
	taken SlugFilter
}

// NewService creates a seller Service.
func NewService(repo Repository, cfg Config, opts ...Option) *Service {
	if cfg.SlugAttempts <= 0 {
		cfg.SlugAttempts = 100
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	s := &Service{repo: repo, cfg: cfg}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register validates req, hashes the password and stores the seller under
// the first free slug derived from the store name.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Seller, error) {
	document, err := validate(req)
	if err != nil {
		return nil, err
	}

	base := Slugify(req.StoreName)
	if base == "" {
		return nil, &ValidationError{Field: "store_name", Reason: "must contain letters or digits"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}

	sel := &Seller{
		Kind:         req.Kind,
		Name:         strings.TrimSpace(req.Name),
		StoreName:    strings.TrimSpace(req.StoreName),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Document:     document,
		Phone:        strings.TrimSpace(req.Phone),
		Address:      req.Address,
		PasswordHash: hash,
		Active:       true,
	}

	for candidate := range SlugCandidates(base, s.cfg.SlugAttempts) {
		if s.taken != nil && s.taken(candidate) {
			continue
		}
		sel.Slug = candidate

		err := s.repo.Create(ctx, sel)
		switch {
		case err == nil:
			return sel, nil
		case errors.Is(err, ErrSlugTaken):
			continue
		default:
			return nil, errors.Wrap(err, "create seller")
		}
	}
	return nil, errors.Wrapf(ErrSlugExhausted, "%q after %d attempts", base, s.cfg.SlugAttempts)
}

// GetBySlug returns the seller published under slug.
func (s *Service) GetBySlug(ctx context.Context, slug string) (*Seller, error) {
	return s.repo.GetBySlug(ctx, slug)
}

// ListActive returns every active store.
func (s *Service) ListActive(ctx context.Context) ([]Seller, error) {
	return s.repo.ListActive(ctx)
}

// validate checks req and returns the document reduced to digits.
func validate(req RegisterRequest) (string, error) {
	if strings.TrimSpace(req.Name) == "" {
		return "", &ValidationError{Field: "name", Reason: "required"}
	}
	if strings.TrimSpace(req.StoreName) == "" {
		return "", &ValidationError{Field: "store_name", Reason: "required"}
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return "", &ValidationError{Field: "email", Reason: "invalid address"}
	}
	if len(req.Password) < 8 {
		return "", &ValidationError{Field: "password", Reason: "at least 8 characters"}
	}

	document := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, req.Document)

	switch req.Kind {
	case KindIndividual:
		if len(document) != 11 {
			return "", &ValidationError{Field: "document", Reason: "CPF must have 11 digits"}
		}
	case KindCompany:
		if len(document) != 14 {
			return "", &ValidationError{Field: "document", Reason: "CNPJ must have 14 digits"}
		}
	default:
		return "", &ValidationError{Field: "kind", Reason: "must be individual or company"}
	}
	return document, nil
}
