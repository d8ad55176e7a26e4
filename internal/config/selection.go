package config

import (
	"fmt"
	"sync"
)

// Selection is the app currently managed. The dashboard can switch it at
// runtime to another app in the catalog.
type Selection struct {
	mu      sync.RWMutex
	catalog Catalog
	current App
}

// NewSelection starts with the named app (see Catalog.Select).
func NewSelection(catalog Catalog, name string) (*Selection, error) {
	app, err := catalog.Select(name)
	if err != nil {
		return nil, err
	}
	return &Selection{catalog: catalog, current: app}, nil
}

func (s *Selection) Current() App {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set switches to name, which must be in the catalog.
func (s *Selection) Set(name string) (App, error) {
	app, ok := s.catalog[name]
	if !ok {
		return App{}, fmt.Errorf("invalid app name %q", name)
	}
	s.mu.Lock()
	s.current = app
	s.mu.Unlock()
	return app, nil
}

func (s *Selection) Names() []string {
	return s.catalog.Names()
}
