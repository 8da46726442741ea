package service

import (
	"fmt"

	"example.com/repo"
)

// Service formats values from a Repo.
type Service struct {
	repo repo.Repo
}

// New creates a Service.
func New(r repo.Repo) *Service {
	return &Service{repo: r}
}

func (s *Service) Lookup(key string) (string, error) {
	v, err := s.repo.Get(key)
	if err != nil {
		return "", fmt.Errorf("lookup: %w", err)
	}
	return s.format(v), nil
}

func (s *Service) format(v string) string {
	return "[" + v + "]"
}

// Default wires a Service over RepoA.
func Default() *Service {
	return New(repo.NewRepoA())
}
