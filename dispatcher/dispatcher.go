// Confessor
// Copyright (c) 2016, 2025, DCSO GmbH

// Package dispatcher drives recursive parsing: it runs a parser's component
// chain against a root file object and against every file those components
// derive from it, bounded by a configurable file count and depth.
package dispatcher

import (
	"fmt"

	"github.com/DCSO/confessor/fileobject"
	"github.com/DCSO/confessor/registry"

	log "github.com/sirupsen/logrus"
)

const (
	// DefaultMaxFiles bounds how many file objects one dispatch session
	// will process.
	DefaultMaxFiles = 100
	// DefaultMaxDepth bounds how deep the derived-file production graph
	// is followed.
	DefaultMaxDepth = 16
)

// Result holds the outcome of running a component chain against one file
// object. Many Results (one per discovered file) roll up into one merged
// report per requested parser.
type Result struct {
	Parser   string
	Source   string
	File     *fileobject.FileObject
	Metadata map[string]interface{}
	Success  bool
	Warnings []string
}

// Dispatcher runs an ordered component chain across a file object and its
// derived children. Processing is breadth-first by discovery order: a
// parent is fully processed by all components before any of its children
// begin, which makes output ordering reproducible across runs.
type Dispatcher struct {
	Parser     string
	Source     string
	Components []registry.Component
	MaxFiles   int
	MaxDepth   int
}

type queueEntry struct {
	file  *fileobject.FileObject
	depth int
}

// Dispatch processes the root file object and everything derived from it,
// returning one Result per processed file in discovery order. Identical
// content reachable via multiple paths in the production graph is processed
// exactly once, keyed by content hash. A failing or panicking component is
// recorded as a warning on the affected Result and never prevents sibling
// components, sibling files or children from being processed.
func (d *Dispatcher) Dispatch(root *fileobject.FileObject) []Result {
	maxFiles := d.MaxFiles
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}
	maxDepth := d.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	visited := make(map[string]bool)
	queue := []queueEntry{{file: root}}
	var results []Result
	processed := 0

	for len(queue) > 0 {
		entry := queue[0]
		queue = queue[1:]

		hash := entry.file.SHA256()
		if visited[hash] {
			log.Debugf("skipping already processed file %s", hash)
			continue
		}
		visited[hash] = true
		processed++

		res := d.processFile(entry.file)

		// collect children added by the chain; the bounds are reported
		// conditions, not failures
		for _, child := range entry.file.Children() {
			if visited[child.SHA256()] {
				continue
			}
			if processed+len(queue) >= maxFiles {
				res.Warnings = append(res.Warnings, fmt.Sprintf(
					"maximum file count %d exceeded, not descending into %s",
					maxFiles, child.Name()))
				continue
			}
			if entry.depth+1 > maxDepth {
				res.Warnings = append(res.Warnings, fmt.Sprintf(
					"maximum recursion depth %d exceeded, not descending into %s",
					maxDepth, child.Name()))
				continue
			}
			queue = append(queue, queueEntry{file: child, depth: entry.depth + 1})
		}

		results = append(results, res)
	}

	return results
}

// processFile runs the full component chain against one file object.
func (d *Dispatcher) processFile(f *fileobject.FileObject) Result {
	res := Result{
		Parser: d.Parser,
		Source: d.Source,
		File:   f,
	}

	failed := 0
	for _, comp := range d.Components {
		if err := runComponent(comp, f); err != nil {
			failed++
			res.Warnings = append(res.Warnings, fmt.Sprintf(
				"component %s failed on %s: %v", comp.Name(), f.Name(), err))
			log.Warnf("parser %s component %s failed on %s: %v",
				d.Parser, comp.Name(), f.Name(), err)
			continue
		}
		log.Debugf("parser %s component %s processed file %s", d.Parser, comp.Name(), f.Name())
	}
	res.Success = failed < len(d.Components) || len(d.Components) == 0

	res.Metadata = f.Metadata().Fields()
	res.Warnings = append(res.Warnings, f.Metadata().Warnings()...)
	return res
}

// runComponent isolates one component invocation; third-party component
// code may be buggy, so panics are converted into errors.
func runComponent(comp registry.Component, f *fileobject.FileObject) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return comp.Run(f)
}
