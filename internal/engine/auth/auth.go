// Package auth decides which identities may use the API: the addresses
// listed in the config file plus those stored in the allowed_users table.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"processmap/internal/domain"
	"processmap/internal/repo"
)

var ErrInvalidEmail = errors.New("invalid email address")

// NotAllowedError reports an authenticated identity missing from the
// allow-list.
type NotAllowedError struct {
	Email string
}

func (e NotAllowedError) Error() string {
	if e.Email == "" {
		return "identity has no email address"
	}
	return fmt.Sprintf("%s is not on the allow-list", e.Email)
}

// Service checks the allow-list. Static entries come from configuration
// and cannot be removed through Deny.
type Service struct {
	Repo   repo.Repo
	Static []string
	Now    func() time.Time
}

func (s Service) static(email string) bool {
	for _, e := range s.Static {
		if repo.NormalizeEmail(e) == email {
			return true
		}
	}
	return false
}

func (s Service) IsAllowed(ctx context.Context, email string) (bool, error) {
	email = repo.NormalizeEmail(email)
	if email == "" {
		return false, nil
	}
	if s.static(email) {
		return true, nil
	}
	return s.Repo.IsUserAllowed(ctx, email)
}

// Require returns a NotAllowedError unless email is allowed.
func (s Service) Require(ctx context.Context, email string) error {
	ok, err := s.IsAllowed(ctx, email)
	if err != nil {
		return err
	}
	if !ok {
		return NotAllowedError{Email: repo.NormalizeEmail(email)}
	}
	return nil
}

func (s Service) Allow(ctx context.Context, email, addedBy string) error {
	email = repo.NormalizeEmail(email)
	if !validEmail(email) {
		return fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return s.Repo.AllowUser(ctx, email, addedBy, now().UTC().Format(time.RFC3339))
}

func (s Service) Deny(ctx context.Context, email string) error {
	email = repo.NormalizeEmail(email)
	if s.static(email) {
		return fmt.Errorf("%s is listed in the config file; remove it there", email)
	}
	return s.Repo.DenyUser(ctx, email)
}

// List merges configured and stored entries, sorted by address.
// Configured entries carry AddedBy "config".
func (s Service) List(ctx context.Context) ([]domain.AllowedUser, error) {
	stored, err := s.Repo.ListAllowedUsers(ctx)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []domain.AllowedUser
	for _, e := range s.Static {
		email := repo.NormalizeEmail(e)
		if email == "" || seen[email] {
			continue
		}
		seen[email] = true
		out = append(out, domain.AllowedUser{Email: email, AddedBy: "config"})
	}
	for _, u := range stored {
		if seen[u.Email] {
			continue
		}
		seen[u.Email] = true
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func validEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t")
}
