package tenant

import (
	"context"
	"fmt"
	"strings"
)

const maxSubdomainLen = 50

// Slugify lowercases name and turns spaces and underscores into hyphens.
func Slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.NewReplacer(" ", "-", "_", "-").Replace(s)
	if r := []rune(s); len(r) > maxSubdomainLen {
		s = string(r[:maxSubdomainLen])
	}
	return s
}

// UniqueSubdomain returns the slug of name, suffixed -1, -2, ... until it is
// unused.
func UniqueSubdomain(ctx context.Context, repo Repository, name string) (string, error) {
	base := Slugify(name)
	candidate := base
	for n := 1; ; n++ {
		taken, err := repo.SubdomainExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check subdomain %q: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, n)
	}
}
