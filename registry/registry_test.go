// Confessor
// Copyright (c) 2016, 2025, DCSO GmbH

package registry

import (
	"testing"

	"github.com/DCSO/confessor/fileobject"
)

type noopParser struct {
	name string
}

func (p *noopParser) Name() string                       { return p.name }
func (p *noopParser) Run(f *fileobject.FileObject) error { return nil }

func TestLookupBySource(t *testing.T) {
	defer func() { parserDefs = nil }()

	Register(Definition{
		Name:   "Sample",
		Source: "alpha",
		Parser: &noopParser{name: "Sample"},
	})
	Register(Definition{
		Name:   "Sample",
		Source: "beta",
		Parser: &noopParser{name: "Sample"},
	})

	if defs := Lookup("Sample"); len(defs) != 2 {
		t.Fatalf("expected both definitions, got %d", len(defs))
	}
	defs := Lookup("beta:Sample")
	if len(defs) != 1 || defs[0].Source != "beta" {
		t.Fatalf("source prefix not honoured: %v", defs)
	}
	if defs := Lookup("NoSuchParser"); len(defs) != 0 {
		t.Fatalf("expected no match, got %v", defs)
	}
}

func TestNamesDistinct(t *testing.T) {
	defer func() { parserDefs = nil }()

	Register(Definition{Name: "A", Parser: &noopParser{name: "A"}})
	Register(Definition{Name: "A", Source: "other", Parser: &noopParser{name: "A"}})
	Register(Definition{Name: "B", Parser: &noopParser{name: "B"}})

	names := Names()
	if len(names) != 2 || names[0] != "A" || names[1] != "B" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestDispatched(t *testing.T) {
	d := Definition{Name: "X", Parser: &noopParser{name: "X"}}
	if d.Dispatched() {
		t.Fatal("simple parser must not report as dispatched")
	}
	d = Definition{Name: "Y", Components: []Component{&noopParser{name: "Y"}}}
	if !d.Dispatched() {
		t.Fatal("component parser must report as dispatched")
	}
}
