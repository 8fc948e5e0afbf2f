package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/guidedesk/guidedesk/internal/api"
)

// Seed is a YAML fixture of initial data.
type Seed struct {
	Users       []SeedUser  `yaml:"users"`
	Guides      []SeedGuide `yaml:"guides"`
	Tours       []SeedTour  `yaml:"tours"`
	SyncEnabled *bool       `yaml:"sync_enabled"`
}

// SeedUser is an account with a plain-text password that is hashed on load.
type SeedUser struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

// SeedGuide is a guide fixture.
type SeedGuide struct {
	Name      string   `yaml:"name"`
	Phone     string   `yaml:"phone"`
	Email     string   `yaml:"email"`
	Languages []string `yaml:"languages"`
	Bio       string   `yaml:"bio"`
}

// SeedTour is a tour fixture. Guide refers to a guide by name.
type SeedTour struct {
	Title       string `yaml:"title"`
	Duration    string `yaml:"duration"`
	Description string `yaml:"description"`
	Date        string `yaml:"date"`
	Time        string `yaml:"time"`
	Guide       string `yaml:"guide"`
	Paid        bool   `yaml:"paid"`
	Cancelled   bool   `yaml:"cancelled"`
}

// LoadSeed reads a seed file.
func LoadSeed(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read seed: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return Seed{}, fmt.Errorf("parse seed %s: %w", path, err)
	}
	return seed, nil
}

// Apply loads the seed into st. Existing users are left alone; guides and
// tours are only loaded into a store that has no guides yet, so restarting
// against a persistent database does not duplicate them.
func (s Seed) Apply(ctx context.Context, st Store) error {
	for _, u := range s.Users {
		if _, err := EnsureUser(ctx, st, u.Username, u.Password, u.Role); err != nil {
			return err
		}
	}
	if s.SyncEnabled != nil {
		if err := st.SetSyncEnabled(ctx, *s.SyncEnabled); err != nil {
			return fmt.Errorf("seed sync switch: %w", err)
		}
	}

	_, total, err := st.ListGuides(ctx, Page{Page: 1, PerPage: 1})
	if err != nil {
		return fmt.Errorf("count guides: %w", err)
	}
	if total > 0 {
		return nil
	}

	byName := make(map[string]int64, len(s.Guides))
	for _, g := range s.Guides {
		in := api.NewGuide{Name: g.Name, Phone: g.Phone, Email: g.Email, Languages: g.Languages, Bio: g.Bio}
		if err := in.Validate(); err != nil {
			return fmt.Errorf("seed guide %q: %w", g.Name, err)
		}
		created, err := st.CreateGuide(ctx, in)
		if err != nil {
			return fmt.Errorf("seed guide %q: %w", g.Name, err)
		}
		byName[strings.ToLower(g.Name)] = created.ID
	}

	for _, t := range s.Tours {
		guideID, ok := byName[strings.ToLower(t.Guide)]
		if !ok {
			return fmt.Errorf("seed tour %q: %w %q", t.Title, ErrUnknownGuide, t.Guide)
		}
		paid, cancelled := t.Paid, t.Cancelled
		in := api.NewTour{
			Title: t.Title, Duration: t.Duration, Description: t.Description,
			Date: t.Date, Time: t.Time, GuideID: guideID,
			Paid: &paid, Cancelled: &cancelled,
		}
		if err := in.Validate(); err != nil {
			return fmt.Errorf("seed tour %q: %w", t.Title, err)
		}
		if _, err := st.CreateTour(ctx, in); err != nil {
			return fmt.Errorf("seed tour %q: %w", t.Title, err)
		}
	}
	return nil
}

// EnsureUser creates the account when it does not exist yet and reports
// whether it did.
func EnsureUser(ctx context.Context, st Store, username, password, role string) (bool, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return false, fmt.Errorf("user needs a username and a password")
	}
	if role == "" {
		role = api.RoleGuide
	}
	if _, err := st.UserByUsername(ctx, username); err == nil {
		return false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return false, fmt.Errorf("look up user %q: %w", username, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}
	_, err = st.CreateUser(ctx, User{Username: username, PasswordHash: string(hash), Role: role})
	if errors.Is(err, ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create user %q: %w", username, err)
	}
	return true, nil
}
