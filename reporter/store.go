// Confessor
// Copyright (c) 2016, 2025, DCSO GmbH

package reporter

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/DCSO/confessor/registry"
	"github.com/DCSO/confessor/resultdb"
	"github.com/DCSO/confessor/schema"

	log "github.com/sirupsen/logrus"
)

// loadStored returns the stored reports for this (sample, parser set) pair
// if every report the run would produce has a stored counterpart younger
// than the rescan timeframe. Any missing or stale entry causes a full fresh
// run. Reports merged across sources are stored under the synthetic
// "merged" source, so that is the key consulted on the merge path.
func (r *Reporter) loadStored(defs []registry.Definition, data []byte) []*MergedReport {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	if r.opts.MergeSameName && len(defs) > 1 {
		entry, ok := r.freshEntry(hash, "merged:"+defs[0].Name)
		if !ok {
			return nil
		}
		return []*MergedReport{reportFromEntry(entry)}
	}

	var reports []*MergedReport
	for _, def := range defs {
		entry, ok := r.freshEntry(hash, def.Source+":"+def.Name)
		if !ok {
			return nil
		}
		reports = append(reports, reportFromEntry(entry))
	}
	return reports
}

// freshEntry looks up one stored report and checks it against the rescan
// timeframe.
func (r *Reporter) freshEntry(hash, qualifiedName string) (resultdb.ReportEntry, bool) {
	entry, err := resultdb.GetReportEntry(hash, qualifiedName)
	if err != nil && err.Error() != "missing bucket" {
		log.Warnf("report store lookup failed: %v", err)
		return entry, false
	}
	if entry.Hashes.Sha256 == "" {
		return entry, false
	}
	if time.Now().UTC().Sub(entry.Time) >= *rescanTimeframe {
		return entry, false
	}
	log.Debugf("sample %s already parsed by %s, using stored report", hash, qualifiedName)
	return entry, true
}

func reportFromEntry(entry resultdb.ReportEntry) *MergedReport {
	return &MergedReport{
		Parser:   entry.Parser,
		Source:   entry.Source,
		Filename: entry.Filename,
		Hashes:   entry.Hashes,
		Metadata: renormalize(entry.Metadata),
		Dropped:  entry.Dropped,
		Success:  entry.Success,
		Warnings: entry.Warnings,
		Cached:   true,
	}
}

// store persists fresh reports for later runs to pick up.
func (r *Reporter) store(reports []*MergedReport) {
	for _, rep := range reports {
		if rep.Cached {
			continue
		}
		entry := resultdb.ReportEntry{
			Parser:   rep.Parser,
			Source:   rep.Source,
			Success:  rep.Success,
			Time:     time.Now().UTC(),
			Filename: rep.Filename,
			Hashes:   rep.Hashes,
			Metadata: rep.Metadata,
			Warnings: rep.Warnings,
			Dropped:  rep.Dropped,
		}
		if len(rep.Files) > 0 {
			entry.Size = rep.Files[0].Size()
			entry.Magic = rep.Files[0].Magic()
		}
		err := resultdb.CreateReportEntry(entry)
		if err != nil {
			log.Warnf("could not store report entry: %v", err)
		}
	}
}

// renormalize restores the canonical value shapes of a metadata mapping
// that went through a JSON round trip in the report store.
func renormalize(meta map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(meta))
	for name, value := range meta {
		field, ok := schema.Lookup(name)
		if !ok {
			continue
		}
		switch field.Type {
		case schema.String:
			if v, ok := value.(string); ok {
				out[name] = v
			}
		case schema.StringList:
			if v := toStringList(value); v != nil {
				out[name] = v
			}
		case schema.TupleList:
			if raw, ok := value.([]interface{}); ok {
				var tuples [][]string
				for _, t := range raw {
					if tuple := toStringList(t); tuple != nil {
						tuples = append(tuples, tuple)
					}
				}
				if tuples != nil {
					out[name] = tuples
				}
			}
		case schema.StringMap:
			if raw, ok := value.(map[string]interface{}); ok {
				mapped := make(map[string][]string, len(raw))
				for k, v := range raw {
					if vv := toStringList(v); vv != nil {
						mapped[k] = vv
					}
				}
				out[name] = mapped
			}
		}
	}
	return out
}

func toStringList(value interface{}) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []interface{}:
		var out []string
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil
			}
			out = append(out, s)
		}
		return out
	}
	return nil
}
