// Confessor
// Copyright (c) 2016, 2025, DCSO GmbH

package yaraid

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/DCSO/confessor/fileobject"
	"github.com/DCSO/confessor/reporter"
	"github.com/DCSO/confessor/util"

	"github.com/jarcoal/httpmock"
)

func TestYaraIDFromFile(t *testing.T) {
	yacFile := filepath.Join(t.TempDir(), "test.yac")
	if err := util.MakeYARARuleFile("../../testdata/simple.yara", yacFile); err != nil {
		t.Fatal(err)
	}
	flag.Set("rule-file", yacFile)
	scanRules = nil

	sample := util.MakeDropperSample([]byte("MZ some dropper stub "))
	r := reporter.New(reporter.Options{})
	reports, err := r.Run("YaraID", "dropper.bin", sample)
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected one report, got %d", len(reports))
	}
	rep := reports[0]
	if !rep.Success {
		t.Fatalf("expected success, warnings: %v", rep.Warnings)
	}

	other, ok := rep.Metadata["other"].(map[string][]string)
	if !ok {
		t.Fatalf("no rule matches reported: %v", rep.Metadata)
	}
	found := false
	for _, rule := range other["yara_rule"] {
		if rule == "xz_blob" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected xz_blob match, got %v", other["yara_rule"])
	}
}

func TestYaraIDFromHTTP(t *testing.T) {
	yaraURL := "https://localhost:9998/current.yac"
	yacFile := filepath.Join(t.TempDir(), "test.yac")
	if err := util.MakeYARARuleFile("../../testdata/simple.yara", yacFile); err != nil {
		t.Fatal(err)
	}
	yacBytes, err := os.ReadFile(yacFile)
	if err != nil {
		t.Fatal(err)
	}

	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder("GET", yaraURL,
		httpmock.NewBytesResponder(200, yacBytes))

	flag.Set("rule-file", "")
	flag.Set("rule-uri", yaraURL)
	scanRules = nil

	var p Parser
	if err := p.ReInitialize(); err != nil {
		t.Fatal(err)
	}

	f := fileobject.New("config.bin", []byte("c2=10.11.12.13\n"))
	if err := p.Run(f); err != nil {
		t.Fatal(err)
	}
	other := f.Metadata().Fields()["other"].(map[string][]string)
	found := false
	for _, rule := range other["yara_rule"] {
		if rule == "implant_config" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected implant_config match, got %v", other["yara_rule"])
	}
}
