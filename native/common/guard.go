// Package common holds the operator controls shared by native programs.
package common

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrModulePaused = errors.New("module paused")

type PauseView interface {
	IsPaused(module string) bool
}

// Guard returns ErrModulePaused, naming module, when p reports it paused. A
// nil view never pauses anything.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return fmt.Errorf("%w: %s", ErrModulePaused, module)
	}
	return nil
}

// PauseSet is a mutable PauseView an operator can flip at runtime.
type PauseSet struct {
	mu     sync.RWMutex
	paused map[string]bool
}

func NewPauseSet(modules ...string) *PauseSet {
	s := &PauseSet{paused: make(map[string]bool, len(modules))}
	for _, module := range modules {
		s.paused[module] = true
	}
	return s
}

func (s *PauseSet) IsPaused(module string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused[module]
}

func (s *PauseSet) Set(module string, paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if paused {
		s.paused[module] = true
		return
	}
	delete(s.paused, module)
}

// Paused lists the paused modules in name order.
func (s *PauseSet) Paused() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.paused))
	for module := range s.paused {
		out = append(out, module)
	}
	sort.Strings(out)
	return out
}
