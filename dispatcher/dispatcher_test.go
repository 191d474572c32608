// Confessor
// Copyright (c) 2016, 2025, DCSO GmbH

package dispatcher

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/DCSO/confessor/fileobject"
	"github.com/DCSO/confessor/registry"
)

// funcComponent wraps a plain function as a component for testing.
type funcComponent struct {
	name string
	run  func(*fileobject.FileObject) error
}

func (c *funcComponent) Name() string                       { return c.name }
func (c *funcComponent) Run(f *fileobject.FileObject) error { return c.run(f) }

func TestDispatchOrder(t *testing.T) {
	// root derives a and b, a derives c; breadth-first means b is
	// processed before c
	unpack := &funcComponent{
		name: "Unpack",
		run: func(f *fileobject.FileObject) error {
			switch f.Name() {
			case "root":
				f.AddChild("a", []byte("content a"), "")
				f.AddChild("b", []byte("content b"), "")
			case "a":
				f.AddChild("c", []byte("content c"), "")
			}
			return nil
		},
	}

	d := &Dispatcher{Parser: "Test", Components: []registry.Component{unpack}}
	results := d.Dispatch(fileobject.New("root", []byte("root content")))

	var names []string
	for _, r := range results {
		names = append(names, r.File.Name())
	}
	want := []string{"root", "a", "b", "c"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected processing order: %v", names)
	}
	for _, r := range results {
		if !r.Success {
			t.Fatalf("expected success for %s", r.File.Name())
		}
	}
}

func TestDispatchDedup(t *testing.T) {
	// the same payload is reachable via two parents; it must be
	// processed exactly once
	unpack := &funcComponent{
		name: "Unpack",
		run: func(f *fileobject.FileObject) error {
			switch f.Name() {
			case "root":
				f.AddChild("a", []byte("content a"), "")
				f.AddChild("b", []byte("content b"), "")
			case "a", "b":
				f.AddChild("shared-"+f.Name(), []byte("shared content"), "")
			}
			return nil
		},
	}

	d := &Dispatcher{Parser: "Test", Components: []registry.Component{unpack}}
	results := d.Dispatch(fileobject.New("root", []byte("root content")))

	if len(results) != 4 {
		var names []string
		for _, r := range results {
			names = append(names, r.File.Name())
		}
		t.Fatalf("expected 4 results, got %v", names)
	}
}

func TestDispatchComponentIsolation(t *testing.T) {
	failing := &funcComponent{
		name: "Broken",
		run: func(f *fileobject.FileObject) error {
			return errors.New("unexpected header")
		},
	}
	panicking := &funcComponent{
		name: "Crasher",
		run: func(f *fileobject.FileObject) error {
			panic("index out of range")
		},
	}
	working := &funcComponent{
		name: "Extract",
		run: func(f *fileobject.FileObject) error {
			f.Metadata().Add("mutex", "mtx-1")
			return nil
		},
	}

	d := &Dispatcher{Parser: "Test",
		Components: []registry.Component{failing, panicking, working}}
	results := d.Dispatch(fileobject.New("root", []byte("root content")))

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	res := results[0]
	if !res.Success {
		t.Fatal("one working component should keep the result successful")
	}
	if len(res.Metadata["mutex"].([]string)) != 1 {
		t.Fatalf("metadata from working component missing: %v", res.Metadata)
	}
	var sawErr, sawPanic bool
	for _, w := range res.Warnings {
		if strings.Contains(w, "Broken") && strings.Contains(w, "unexpected header") {
			sawErr = true
		}
		if strings.Contains(w, "Crasher") && strings.Contains(w, "panic") {
			sawPanic = true
		}
	}
	if !sawErr || !sawPanic {
		t.Fatalf("expected both failure warnings, got %v", res.Warnings)
	}
}

func TestDispatchAllComponentsFail(t *testing.T) {
	failing := &funcComponent{
		name: "Broken",
		run: func(f *fileobject.FileObject) error {
			return errors.New("nope")
		},
	}
	d := &Dispatcher{Parser: "Test", Components: []registry.Component{failing}}
	results := d.Dispatch(fileobject.New("root", []byte("x")))
	if results[0].Success {
		t.Fatal("result must be unsuccessful when every component fails")
	}
}

func TestDispatchMaxFiles(t *testing.T) {
	unpack := &funcComponent{
		name: "Unpack",
		run: func(f *fileobject.FileObject) error {
			for i := 0; i < 5; i++ {
				f.AddChild(fmt.Sprintf("%s-%d", f.Name(), i),
					[]byte(fmt.Sprintf("%s-%d", f.Name(), i)), "")
			}
			return nil
		},
	}

	d := &Dispatcher{Parser: "Test", Components: []registry.Component{unpack},
		MaxFiles: 3}
	results := d.Dispatch(fileobject.New("root", []byte("root content")))

	if len(results) > 3 {
		t.Fatalf("file bound not enforced, processed %d files", len(results))
	}
	found := false
	for _, r := range results {
		for _, w := range r.Warnings {
			if strings.Contains(w, "maximum file count") {
				found = true
			}
		}
	}
	if !found {
		t.Fatal("expected a file count warning")
	}
}

func TestDispatchMaxDepth(t *testing.T) {
	depth := 0
	unpack := &funcComponent{
		name: "Unpack",
		run: func(f *fileobject.FileObject) error {
			depth++
			f.AddChild(fmt.Sprintf("level-%d", depth),
				[]byte(fmt.Sprintf("level-%d", depth)), "")
			return nil
		},
	}

	d := &Dispatcher{Parser: "Test", Components: []registry.Component{unpack},
		MaxDepth: 2}
	results := d.Dispatch(fileobject.New("root", []byte("root content")))

	// root plus two levels of children
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	last := results[len(results)-1]
	found := false
	for _, w := range last.Warnings {
		if strings.Contains(w, "maximum recursion depth") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a depth warning, got %v", last.Warnings)
	}
}
