// Package credentials resolves provider secrets at request time.
package credentials

import "os"

// Source looks up a secret by configuration key. Empty values count as absent.
type Source interface {
	Lookup(key string) (string, bool)
}

type envSource struct {
	lookup func(string) (string, bool)
}

// Env reads the process environment on every lookup.
func Env() Source {
	return envSource{lookup: os.LookupEnv}
}

func (s envSource) Lookup(key string) (string, bool) {
	v, ok := s.lookup(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Static serves a fixed map.
type Static map[string]string

func (s Static) Lookup(key string) (string, bool) {
	v, ok := s[key]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

type chain []Source

// Chain returns the first present value across sources, in order.
func Chain(sources ...Source) Source {
	out := make(chain, 0, len(sources))
	for _, s := range sources {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (c chain) Lookup(key string) (string, bool) {
	for _, s := range c {
		if v, ok := s.Lookup(key); ok {
			return v, true
		}
	}
	return "", false
}
