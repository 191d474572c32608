// Confessor
// Copyright (c) 2016, 2025, DCSO GmbH

// Package registry - Reference: http://stackoverflow.com/questions/28001872/golang-events-eventemitter-dispatcher-for-plugin-architecture
package registry

import (
	"strings"

	"github.com/DCSO/confessor/fileobject"

	log "github.com/sirupsen/logrus"
)

// Parser is the entry point of a simple, single-stage parser. Run extracts
// metadata from the given file object in place.
type Parser interface {
	Name() string
	Run(*fileobject.FileObject) error
}

// Component is one stage of a dispatcher-style parser, e.g. "Dropper" or
// "Implant". Components run in configured order against a file and against
// any derived files it produces.
type Component interface {
	Name() string
	Run(*fileobject.FileObject) error
}

// Definition describes one installed parser. Exactly one of Parser and
// Components must be set. Source disambiguates same-named parsers installed
// from different plugin packages.
type Definition struct {
	Name       string
	Source     string
	Author     string
	Parser     Parser
	Components []Component
}

// Dispatched reports whether this parser runs through the dispatcher.
func (d Definition) Dispatched() bool {
	return len(d.Components) > 0
}

// parserDefs is the iterable collection of all installed parsers.
var parserDefs []Definition

// Register makes a parser definition available for usage. It is meant to be
// called from a plugin package's init function.
func Register(d Definition) {
	if d.Name == "" {
		log.Fatal("cannot register parser without a name")
	}
	if (d.Parser == nil) == (len(d.Components) == 0) {
		log.Fatalf("parser %s must set exactly one of Parser and Components", d.Name)
	}
	parserDefs = append(parserDefs, d)
}

// Lookup resolves a requested parser name to all matching installed
// definitions, in registration order. The name may carry an explicit source
// prefix ("source:name") to select a single plugin package.
func Lookup(name string) []Definition {
	source := ""
	if idx := strings.Index(name, ":"); idx >= 0 {
		source = name[:idx]
		name = name[idx+1:]
	}

	var out []Definition
	for _, d := range parserDefs {
		if d.Name != name {
			continue
		}
		if source != "" && d.Source != source {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Names returns the distinct names of all installed parsers, in
// registration order.
func Names() []string {
	seen := make(map[string]bool)
	var out []string
	for _, d := range parserDefs {
		if !seen[d.Name] {
			seen[d.Name] = true
			out = append(out, d.Name)
		}
	}
	return out
}
