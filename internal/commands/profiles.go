package commands

import (
	"fmt"

	"github.com/lox/spend-advisor/internal/bank"
	"github.com/lox/spend-advisor/internal/bank/capitalone"
	"github.com/lox/spend-advisor/internal/bank/chase"
)

// Profiles returns a registry holding every supported export profile
func Profiles() *bank.Registry {
	registry := bank.NewRegistry()
	registry.Register(capitalone.New())
	registry.Register(chase.New())
	return registry
}

// Profile looks up a profile by name
func Profile(name string) (bank.Profile, error) {
	registry := Profiles()
	profile, ok := registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown profile %q, available: %v", name, registry.List())
	}
	return profile, nil
}
