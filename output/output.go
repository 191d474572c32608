// Confessor
// Copyright (c) 2016, 2025, DCSO GmbH

// Package output serializes merged reports to the supported reporting
// formats: CSV, human-readable text and JSON.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/DCSO/confessor/reporter"
	"github.com/DCSO/confessor/schema"
)

// standardFields are the schema fields rendered in the standard metadata
// section and as CSV value columns; the catch-alls get their own sections.
func standardFields() []string {
	var out []string
	for _, name := range schema.Names() {
		switch name {
		case "other", "debug", "outputfile":
			continue
		}
		out = append(out, name)
	}
	return out
}

// CSV writes one row per (sample, parser) pair: fixed identity columns
// followed by every registered field in schema order. All cell values and
// sort keys are canonicalized to strings before comparison, so mixed or
// missing values can never produce an ordering failure.
func CSV(reports []*reporter.MergedReport, w io.Writer) error {
	fields := standardFields()
	header := append([]string{"filename", "md5", "parser"}, fields...)

	var rows [][]string
	for _, rep := range reports {
		row := []string{rep.Filename, rep.Hashes.Md5, rep.QualifiedName()}
		for _, name := range fields {
			row = append(row, cellString(name, rep.Metadata[name]))
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		for k := range rows[i] {
			if rows[i][k] != rows[j][k] {
				return rows[i][k] < rows[j][k]
			}
		}
		return false
	})

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// cellString renders a field value as its canonical string representation.
// A missing value renders as the empty string.
func cellString(name string, value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []string:
		return strings.Join(v, ", ")
	case [][]string:
		parts := make([]string, len(v))
		for i, t := range v {
			parts[i] = formatTuple(name, t)
		}
		return strings.Join(parts, ", ")
	case map[string][]string:
		var keys []string
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var parts []string
		for _, k := range keys {
			for _, e := range v[k] {
				parts = append(parts, k+"="+e)
			}
		}
		return strings.Join(parts, ", ")
	}
	return fmt.Sprintf("%v", value)
}

// formatTuple renders a tuple value in the conventional form for its field.
func formatTuple(name string, values []string) string {
	switch {
	case name == "credential" && len(values) == 2:
		return values[0] + ":" + values[1]
	case (name == "port" || name == "listenport") && len(values) == 2:
		return values[0] + "/" + values[1]
	case name == "registrykeyvalue" && len(values) == 2:
		return values[0] + "=" + values[1]
	case (name == "socketaddress" || name == "c2_socketaddress") && len(values) == 3:
		return values[0] + ":" + values[1] + "/" + values[2]
	case name == "outputfile" && len(values) >= 3:
		return values[0] + " " + values[1] + " " + values[2]
	}
	return strings.Join(values, " ")
}

// Text renders reports in a human-readable format, with fields in schema
// registration order.
func Text(reports []*reporter.MergedReport) string {
	var b strings.Builder
	for _, rep := range reports {
		b.WriteString("\n----File Information----\n\n")
		writeKeyValue(&b, "parser", rep.QualifiedName())
		writeKeyValue(&b, "inputfilename", rep.Filename)
		writeKeyValue(&b, "md5", rep.Hashes.Md5)
		writeKeyValue(&b, "sha256", rep.Hashes.Sha256)
		if !rep.Success {
			writeKeyValue(&b, "success", "false")
		}

		b.WriteString("\n----Standard Metadata----\n\n")
		for _, name := range standardFields() {
			value, ok := rep.Metadata[name]
			if !ok {
				continue
			}
			writeField(&b, name, value)
		}

		if other, ok := rep.Metadata["other"].(map[string][]string); ok {
			b.WriteString("\n----Other Metadata----\n\n")
			var keys []string
			for k := range other {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				printKey := k
				for _, v := range other[k] {
					writeKeyValue(&b, printKey, v)
					printKey = ""
				}
			}
		}

		if debug, ok := rep.Metadata["debug"].([]string); ok {
			b.WriteString("\n----Debug----\n\n")
			for _, line := range debug {
				b.WriteString(line)
				b.WriteString("\n")
			}
		}

		if len(rep.Dropped) > 0 {
			b.WriteString("\n----Output Files----\n\n")
			for _, drop := range rep.Dropped {
				writeKeyValue(&b, drop.Name, drop.Description+" "+drop.Sha256)
			}
		}

		if len(rep.Warnings) > 0 {
			b.WriteString("\n----Errors----\n\n")
			for _, warning := range rep.Warnings {
				b.WriteString(warning)
				b.WriteString("\n")
			}
		}
	}
	return b.String()
}

func writeField(b *strings.Builder, name string, value interface{}) {
	printKey := name
	switch v := value.(type) {
	case string:
		writeKeyValue(b, printKey, v)
	case []string:
		for _, e := range v {
			writeKeyValue(b, printKey, e)
			printKey = ""
		}
	case [][]string:
		for _, t := range v {
			writeKeyValue(b, printKey, formatTuple(name, t))
			printKey = ""
		}
	}
}

func writeKeyValue(b *strings.Builder, key, value string) {
	fmt.Fprintf(b, "%-20s %s\n", key, value)
}

// JSON renders reports as machine-readable JSON.
func JSON(reports []*reporter.MergedReport) ([]byte, error) {
	type jsonReport struct {
		Parser   string                 `json:"parser"`
		Source   string                 `json:"source"`
		Filename string                 `json:"filename"`
		Md5      string                 `json:"md5"`
		Sha256   string                 `json:"sha256"`
		Success  bool                   `json:"success"`
		Metadata map[string]interface{} `json:"metadata"`
		Dropped  []reporter.DroppedFile `json:"dropped,omitempty"`
		Warnings []string               `json:"warnings,omitempty"`
	}
	out := make([]jsonReport, 0, len(reports))
	for _, rep := range reports {
		out = append(out, jsonReport{
			Parser:   rep.Parser,
			Source:   rep.Source,
			Filename: rep.Filename,
			Md5:      rep.Hashes.Md5,
			Sha256:   rep.Hashes.Sha256,
			Success:  rep.Success,
			Metadata: rep.Metadata,
			Dropped:  rep.Dropped,
			Warnings: rep.Warnings,
		})
	}
	return json.MarshalIndent(out, "", "  ")
}
