// Confessor
// Copyright (c) 2016, 2025, DCSO GmbH

package reporter

import (
	"fmt"

	"github.com/DCSO/confessor/schema"
)

// mergeGroup merges all results of one report group. Results are visited in
// discovery order and fields within each result in schema registration
// order, so the merge outcome is deterministic across runs. The aggregate
// success flag is set if at least one constituent result succeeded.
func (r *Reporter) mergeGroup(filename string, group []outcome) *MergedReport {
	first := group[0]
	rep := &MergedReport{
		Parser:   first.def.Name,
		Source:   first.def.Source,
		Filename: filename,
		Hashes:   first.root.Hashes(),
		Metadata: make(map[string]interface{}),
	}
	if r.opts.MergeSameName && len(group) > 1 {
		// results from several sources were merged into this report
		rep.Source = "merged"
	}

	for _, oc := range group {
		for _, res := range oc.results {
			if res.Success {
				rep.Success = true
			}
			rep.Warnings = append(rep.Warnings, res.Warnings...)
			for _, name := range schema.Names() {
				value, ok := res.Metadata[name]
				if !ok {
					continue
				}
				rep.mergeField(name, value)
			}
		}
	}
	return rep
}

// mergeField folds one field value into the merged metadata according to
// the field's declared merge policy. Union and append merges are
// commutative and idempotent; replace merges keep the first-discovered
// value and record a conflict warning for any later, non-equal offer.
func (m *MergedReport) mergeField(name string, value interface{}) {
	field, ok := schema.Lookup(name)
	if !ok {
		// results can only carry schema-validated fields; anything else
		// indicates a programming error upstream
		m.Warnings = append(m.Warnings, fmt.Sprintf(
			"dropping unregistered field %s during merge", name))
		return
	}

	switch field.Type {
	case schema.String:
		v := value.(string)
		existing, present := m.Metadata[name]
		if !present {
			m.Metadata[name] = v
			return
		}
		if existing.(string) != v {
			m.Warnings = append(m.Warnings, fmt.Sprintf(
				"merge conflict for field %s: keeping %q, discarding %q",
				name, existing.(string), v))
		}
	case schema.StringList:
		list, _ := m.Metadata[name].([]string)
		for _, v := range value.([]string) {
			if !field.NoDedup && containsString(list, v) {
				continue
			}
			list = append(list, v)
		}
		m.Metadata[name] = list
	case schema.TupleList:
		list, _ := m.Metadata[name].([][]string)
		for _, t := range value.([][]string) {
			if containsTuple(list, t) {
				continue
			}
			list = append(list, t)
		}
		m.Metadata[name] = list
	case schema.StringMap:
		merged, ok := m.Metadata[name].(map[string][]string)
		if !ok {
			merged = make(map[string][]string)
			m.Metadata[name] = merged
		}
		for k, vals := range value.(map[string][]string) {
			for _, v := range vals {
				if !containsString(merged[k], v) {
					merged[k] = append(merged[k], v)
				}
			}
		}
	}
}

func containsString(list []string, v string) bool {
	for _, e := range list {
		if e == v {
			return true
		}
	}
	return false
}

func containsTuple(list [][]string, t []string) bool {
	for _, e := range list {
		if len(e) != len(t) {
			continue
		}
		equal := true
		for i := range e {
			if e[i] != t[i] {
				equal = false
				break
			}
		}
		if equal {
			return true
		}
	}
	return false
}
