package store

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Fixture describes users, friendships and groups to load into a store, e.g.
//
//	users:
//	  - id: alice
//	    name: Alice
//	friendships:
//	  - [alice, bob]
//	groups:
//	  - id: "7"
//	    name: Seven
//	    members: [alice, bob]
type Fixture struct {
	Users       []User         `yaml:"users"`
	Friendships [][]string     `yaml:"friendships"`
	Groups      []FixtureGroup `yaml:"groups"`
}

// FixtureGroup is a group with its durable members
type FixtureGroup struct {
	Group   `yaml:",inline"`
	Members []string `yaml:"members"`
}

// ParseFixture decodes a YAML fixture
func ParseFixture(data []byte) (Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Fixture{}, fmt.Errorf("parsing fixture: %w", err)
	}
	for i, pair := range f.Friendships {
		if len(pair) != 2 {
			return Fixture{}, fmt.Errorf("friendship %d has %d identities, want 2", i, len(pair))
		}
	}
	return f, nil
}

// Apply loads the fixture into s
func (f Fixture) Apply(ctx context.Context, s Seeder) error {

	for _, u := range f.Users {
		if err := s.CreateUser(ctx, u); err != nil {
			return fmt.Errorf("creating user %s: %w", u.ID, err)
		}
	}

	for _, pair := range f.Friendships {
		if err := s.AddFriendship(ctx, pair[0], pair[1]); err != nil {
			return fmt.Errorf("adding friendship %s-%s: %w", pair[0], pair[1], err)
		}
	}

	for _, g := range f.Groups {
		if err := s.CreateGroup(ctx, g.Group); err != nil {
			return fmt.Errorf("creating group %s: %w", g.ID, err)
		}
		for _, m := range g.Members {
			if err := s.AddMember(ctx, g.ID, m); err != nil {
				return fmt.Errorf("adding %s to group %s: %w", m, g.ID, err)
			}
		}
	}

	return nil
}

// LoadFixture reads the YAML fixture at path and applies it to s
func LoadFixture(ctx context.Context, s Seeder, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading fixture: %w", err)
	}
	f, err := ParseFixture(data)
	if err != nil {
		return err
	}
	return f.Apply(ctx, s)
}
