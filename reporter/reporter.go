// Confessor
// Copyright (c) 2016, 2025, DCSO GmbH

// Package reporter executes requested parsers against a sample, merges the
// per-file results they produce and renders the final set of reports. A
// misbehaving parser never aborts a run; the reporter always returns a
// (possibly partial, possibly warning-laden) report. Only a request for an
// unknown parser name fails explicitly.
package reporter

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/DCSO/confessor/dispatcher"
	"github.com/DCSO/confessor/fileobject"
	"github.com/DCSO/confessor/registry"
	"github.com/DCSO/confessor/resultdb"

	log "github.com/sirupsen/logrus"
)

var rescanTimeframe = flag.Duration("rescantime", time.Hour*72,
	"return stored reports for samples parsed within this time period")

// Options configures a Reporter.
type Options struct {
	// OutputDir is where derived files are dropped, named by content
	// hash. Empty disables file drops.
	OutputDir string
	// DisableOutputFiles disables writing derived files to disk.
	DisableOutputFiles bool
	// IncludeSuppressed includes suppressed file objects in the primary
	// report output.
	IncludeSuppressed bool
	// MergeSameName merges results from same-named parsers installed
	// from different sources into one report.
	MergeSameName bool
	// MaxFiles and MaxDepth bound recursive dispatch; zero selects the
	// dispatcher defaults.
	MaxFiles int
	MaxDepth int
	// UseStore enables the report database: samples with a stored report
	// younger than -rescantime are not re-parsed. resultdb.InitDB must
	// have been called.
	UseStore bool
}

// Reporter is the top-level entry point for parser execution and metadata
// reporting.
type Reporter struct {
	opts Options
}

// New returns a Reporter with the given options.
func New(opts Options) *Reporter {
	return &Reporter{opts: opts}
}

// DroppedFile is one derived file made available on the file-drop channel.
type DroppedFile = resultdb.DroppedFile

// MergedReport is the merged outcome of one parser (or several same-named
// parsers) against one sample.
type MergedReport struct {
	Parser   string
	Source   string
	Filename string
	Hashes   fileobject.HashInfo
	Metadata map[string]interface{}
	// Files lists the processed file objects appearing in primary
	// output; suppressed files are excluded unless configured otherwise.
	Files []*fileobject.FileObject
	// Dropped lists all derived files, including suppressed ones.
	Dropped  []DroppedFile
	Success  bool
	Warnings []string
	// Cached is set if this report was loaded from the report database
	// instead of being produced by a fresh parser run.
	Cached bool
}

// QualifiedName returns the source-qualified parser name.
func (m *MergedReport) QualifiedName() string {
	if m.Source == "" {
		return m.Parser
	}
	return m.Source + ":" + m.Parser
}

// outcome is the raw result set of one parser definition against the
// sample, before merging.
type outcome struct {
	def     registry.Definition
	root    *fileobject.FileObject
	results []dispatcher.Result
}

// RunAll runs each of the requested parsers against the sample and returns
// the concatenated reports. An unknown parser name fails the whole call.
func (r *Reporter) RunAll(names []string, filename string, data []byte) ([]*MergedReport, error) {
	var all []*MergedReport
	for _, name := range names {
		reports, err := r.Run(name, filename, data)
		if err != nil {
			return nil, err
		}
		all = append(all, reports...)
	}
	return all, nil
}

// RunFile loads a sample from the filesystem and runs the named parser(s)
// on it.
func (r *Reporter) RunFile(name, path string) ([]*MergedReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return r.Run(name, filepath.Base(path), data)
}

// Run resolves the requested parser name to all matching installed
// definitions, executes each of them against the sample and returns the
// merged reports. Results are kept distinct per source unless the
// MergeSameName option is set.
func (r *Reporter) Run(name, filename string, data []byte) ([]*MergedReport, error) {
	defs := registry.Lookup(name)
	if len(defs) == 0 {
		return nil, fmt.Errorf("could not find parsers with name: %s", name)
	}

	if r.opts.UseStore {
		if cached := r.loadStored(defs, data); cached != nil {
			return cached, nil
		}
	}

	// run every matching definition against its own file object so that
	// metadata builders are never shared between parsers
	var outcomes []outcome
	for _, def := range defs {
		root := fileobject.New(filename, data)
		log.Debugf("running parser %s:%s on %s", def.Source, def.Name, filename)

		var results []dispatcher.Result
		if def.Dispatched() {
			disp := &dispatcher.Dispatcher{
				Parser:     def.Name,
				Source:     def.Source,
				Components: def.Components,
				MaxFiles:   r.opts.MaxFiles,
				MaxDepth:   r.opts.MaxDepth,
			}
			results = disp.Dispatch(root)
		} else {
			results = []dispatcher.Result{runSimple(def, root)}
		}
		outcomes = append(outcomes, outcome{def: def, root: root, results: results})
	}

	// group by name, or by (source, name) when merging across sources is
	// not requested
	var order []string
	grouped := make(map[string][]outcome)
	for _, oc := range outcomes {
		key := oc.def.Source + ":" + oc.def.Name
		if r.opts.MergeSameName {
			key = oc.def.Name
		}
		if _, ok := grouped[key]; !ok {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], oc)
	}

	var reports []*MergedReport
	for _, key := range order {
		group := grouped[key]
		rep := r.mergeGroup(filename, group)
		r.dropFiles(rep, group)
		reports = append(reports, rep)
	}

	if r.opts.UseStore {
		r.store(reports)
	}

	return reports, nil
}

// runSimple invokes a non-dispatched parser directly and wraps the single
// outcome as a one-element result set. The same isolation rules as for
// dispatched components apply.
func runSimple(def registry.Definition, root *fileobject.FileObject) dispatcher.Result {
	res := dispatcher.Result{
		Parser:  def.Name,
		Source:  def.Source,
		File:    root,
		Success: true,
	}
	if err := runIsolated(def.Parser, root); err != nil {
		res.Success = false
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"parser %s failed on %s: %v", def.Name, root.Name(), err))
		log.Warnf("parser %s:%s failed on %s: %v", def.Source, def.Name, root.Name(), err)
	}
	res.Metadata = root.Metadata().Fields()
	res.Warnings = append(res.Warnings, root.Metadata().Warnings()...)
	return res
}

func runIsolated(p registry.Parser, f *fileobject.FileObject) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.Run(f)
}

// dropFiles writes all derived files of a report group to the output
// directory, named by sha256 so that re-runs are idempotent and distinct
// content never collides. Suppressed files are excluded from the primary
// file list but always appear on the drop list.
func (r *Reporter) dropFiles(rep *MergedReport, group []outcome) {
	seenFiles := make(map[string]bool)
	seenDrops := make(map[string]bool)
	for _, oc := range group {
		for _, res := range oc.results {
			hash := res.File.SHA256()
			if !seenFiles[hash] {
				seenFiles[hash] = true
				if !res.File.Suppressed() || r.opts.IncludeSuppressed {
					rep.Files = append(rep.Files, res.File)
				}
			}
			for _, child := range res.File.Children() {
				if seenDrops[child.SHA256()] {
					continue
				}
				seenDrops[child.SHA256()] = true
				rep.Dropped = append(rep.Dropped, r.dropFile(rep, child))
			}
		}
	}
}

func (r *Reporter) dropFile(rep *MergedReport, child *fileobject.FileObject) DroppedFile {
	drop := DroppedFile{
		Name:        child.Name(),
		Description: child.Description(),
		Sha256:      child.SHA256(),
	}
	rep.mergeField("outputfile", [][]string{{drop.Name, drop.Description, drop.Sha256}})

	if r.opts.DisableOutputFiles || r.opts.OutputDir == "" {
		return drop
	}
	path := filepath.Join(r.opts.OutputDir, drop.Sha256+".bin")
	if _, err := os.Stat(path); err == nil {
		// identical content has been dropped before
		drop.Path = path
		return drop
	}
	if err := os.WriteFile(path, child.Data(), 0644); err != nil {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf(
			"failed to write output file %s: %v", path, err))
		log.Warnf("failed to write output file %s: %v", path, err)
		return drop
	}
	log.Debugf("dropped output file %s", path)
	drop.Path = path
	return drop
}
