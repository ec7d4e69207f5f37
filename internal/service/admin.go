package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/contentflow/internal/permission"
	"github.com/roach88/contentflow/internal/sensitivity"
)

// SaveRole stores a role.
func (s *Service) SaveRole(ctx context.Context, role permission.Role) error {
	if role.ID == "" {
		role.ID = s.ids.Generate()
	}
	if role.Name == "" {
		return fmt.Errorf("save role %s: empty name", role.ID)
	}
	return s.repo.SaveRole(ctx, role)
}

// ListRoles returns every role.
func (s *Service) ListRoles(ctx context.Context) ([]permission.Role, error) {
	return s.repo.ListRoles(ctx)
}

// SaveUser stores a user.
func (s *Service) SaveUser(ctx context.Context, user permission.User) error {
	if user.ID == "" {
		return fmt.Errorf("save user: empty id")
	}
	return s.repo.SaveUser(ctx, user)
}

// SaveFieldPolicy stores a field-level sensitivity policy.
func (s *Service) SaveFieldPolicy(ctx context.Context, p sensitivity.FieldPolicy) error {
	return s.repo.SaveFieldPolicy(ctx, p)
}

// FieldPolicies returns the field policies of contentType.
func (s *Service) FieldPolicies(ctx context.Context, contentType string) ([]sensitivity.FieldPolicy, error) {
	return s.repo.FieldPolicies(ctx, contentType)
}

// Seed is the document format for bulk-loading access configuration.
//
//	roles:
//	  - id: r-editor
//	    name: Editor
//	    permissions:
//	      - content_type_slug: Article
//	        update: {enabled: true, conditions: {author: {_eq: $CURRENT_USER}}}
//	users:
//	  - id: u1
//	    role_ids: [r-editor]
//	field_policies:
//	  - content_type: Patient
//	    field_name: SSN
//	    action: Mask
//	    allowed_roles: [Doctor]
type Seed struct {
	Roles         []permission.Role         `yaml:"roles"`
	Users         []permission.User         `yaml:"users"`
	FieldPolicies []sensitivity.FieldPolicy `yaml:"field_policies"`
}

// DecodeSeed parses a seed document.
func DecodeSeed(r io.Reader) (Seed, error) {
	var seed Seed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil && !errors.Is(err, io.EOF) {
		return Seed{}, fmt.Errorf("decode seed: %w", err)
	}
	return seed, nil
}

// LoadSeedFile parses the seed document at path.
func LoadSeedFile(path string) (Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return Seed{}, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	seed, err := DecodeSeed(f)
	if err != nil {
		return Seed{}, fmt.Errorf("%s: %w", path, err)
	}
	return seed, nil
}

// ApplySeed saves every role, user and field policy in seed.
func (s *Service) ApplySeed(ctx context.Context, seed Seed) error {
	for _, role := range seed.Roles {
		if err := s.SaveRole(ctx, role); err != nil {
			return err
		}
	}
	for _, user := range seed.Users {
		if err := s.SaveUser(ctx, user); err != nil {
			return err
		}
	}
	for _, p := range seed.FieldPolicies {
		if err := s.SaveFieldPolicy(ctx, p); err != nil {
			return err
		}
	}
	slog.Info("seed applied",
		"roles", len(seed.Roles),
		"users", len(seed.Users),
		"field_policies", len(seed.FieldPolicies),
	)
	return nil
}
