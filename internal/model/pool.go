package model

import (
	"path/filepath"
	"strings"
)

// Pool classifies a tracked Exe into the coarse prediction tier.
// PRIORITY exes get full Markov-mesh prediction; OBSERVATION exes are
// tracked (time, launches) but never joined into the pairwise graph.
type Pool int

const (
	PoolObservation Pool = iota
	PoolPriority
)

func (p Pool) String() string {
	if p == PoolPriority {
		return "PRIORITY"
	}
	return "OBSERVATION"
}

// ClassificationInputs bundles the external sources consulted at
// registration time (and again on state reload) to classify a path.
// The order of checks is significant and mirrors spec.md's pool
// classification rule list.
type ClassificationInputs struct {
	ManualApps         map[string]struct{}
	HasDesktopEntry    func(path string) bool
	ExcludedPatterns   []string
	UserAppPathPrefixes []string
}

// ClassifyPool applies the five-rule pool classification in order:
//  1. manual-apps membership -> PRIORITY
//  2. matching desktop descriptor -> PRIORITY
//  3. excluded-pattern glob match -> OBSERVATION
//  4. under a user-app directory -> PRIORITY
//  5. otherwise -> OBSERVATION
func ClassifyPool(path string, in ClassificationInputs) Pool {
	if in.ManualApps != nil {
		if _, ok := in.ManualApps[path]; ok {
			return PoolPriority
		}
	}
	if in.HasDesktopEntry != nil && in.HasDesktopEntry(path) {
		return PoolPriority
	}
	for _, pat := range in.ExcludedPatterns {
		if ok, _ := filepath.Match(pat, path); ok {
			return PoolObservation
		}
	}
	for _, prefix := range in.UserAppPathPrefixes {
		if prefix == "" {
			continue
		}
		if strings.HasPrefix(path, prefix) {
			return PoolPriority
		}
	}
	return PoolObservation
}
