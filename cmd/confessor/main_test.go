// Confessor
// Copyright (c) 2016, 2025, DCSO GmbH

package main

import (
	"strings"
	"testing"

	"github.com/DCSO/confessor/fileobject"
	"github.com/DCSO/confessor/reporter"
)

func TestRenderReports(t *testing.T) {
	reports := []*reporter.MergedReport{
		{
			Parser:   "XZDropper",
			Source:   "confessor",
			Filename: "sample.bin",
			Hashes:   fileobject.HashInfo{Md5: "aaaa", Sha256: "bbbb"},
			Success:  true,
			Metadata: map[string]interface{}{
				"c2_address": []string{"10.11.12.13"},
			},
		},
	}

	out, err := renderReports(reports, "text")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "10.11.12.13") {
		t.Fatal("text output missing metadata")
	}

	out, err = renderReports(reports, "json")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), `"parser": "XZDropper"`) {
		t.Fatal("json output missing parser name")
	}

	out, err = renderReports(reports, "csv")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(out), "filename,md5,parser") {
		t.Fatalf("unexpected csv header: %s", out)
	}

	if _, err = renderReports(reports, "yaml"); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
