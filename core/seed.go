package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// seedDocument is the YAML layout of a learning-path seed file:
//
//	paths:
//	  - title: "Intro to Go"
//	    topic: go
//	    owner_email: admin@study-assistant.local
//	    steps:
//	      - title: "Install the toolchain"
//	        description: ...
//	        resource_url: https://...
type seedDocument struct {
	Paths []seedPath `yaml:"paths"`
}

type seedPath struct {
	Title      string     `yaml:"title"`
	Topic      string     `yaml:"topic"`
	OwnerEmail string     `yaml:"owner_email"`
	Steps      []seedStep `yaml:"steps"`
}

type seedStep struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	ResourceURL string `yaml:"resource_url"`
}

// SeedLearningPaths loads the YAML seed file and creates each path for its
// owner. Paths whose owner already has a path with the same title are
// skipped, so the seed is idempotent.
func SeedLearningPaths(ctx context.Context, path string, users UserRepository, paths LearningPathRepository) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("seed file %s not found; skipping learning path seed", path)
			return nil
		}
		return err
	}

	var doc seedDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse seed file %s: %w", path, err)
	}

	for i, p := range doc.Paths {
		if strings.TrimSpace(p.Title) == "" || strings.TrimSpace(p.Topic) == "" {
			return fmt.Errorf("seed path %d: title and topic are required", i)
		}
		if strings.TrimSpace(p.OwnerEmail) == "" {
			return fmt.Errorf("seed path %d: owner_email is required", i)
		}

		owner, err := users.FindByEmail(ctx, strings.ToLower(p.OwnerEmail))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				log.Printf("seed: owner %s not found; skipping %q", p.OwnerEmail, p.Title)
				continue
			}
			return err
		}

		existing, err := paths.ListByUser(ctx, owner.ID)
		if err != nil {
			return err
		}
		if hasPathTitled(existing, p.Title) {
			continue
		}

		steps := make([]LearningStep, 0, len(p.Steps))
		for _, s := range p.Steps {
			steps = append(steps, LearningStep{
				Title:       s.Title,
				Description: s.Description,
				ResourceURL: s.ResourceURL,
			})
		}

		if _, err := paths.Create(ctx, owner.ID, LearningPathInput{Title: p.Title, Topic: p.Topic, Steps: steps}); err != nil {
			return fmt.Errorf("seed path %q: %w", p.Title, err)
		}
		log.Printf("seed: created learning path %q for %s", p.Title, owner.Email)
	}

	return nil
}

func hasPathTitled(paths []LearningPath, title string) bool {
	for _, p := range paths {
		if p.Title == title {
			return true
		}
	}
	return false
}
