// Confessor
// Copyright (c) 2016, 2025, DCSO GmbH

// Package yaraid implements a simple parser that identifies samples by
// scanning them with a compiled YARA rule set.
package yaraid

import (
	"flag"
	"time"

	"github.com/DCSO/confessor/fileobject"
	"github.com/DCSO/confessor/registry"

	"github.com/hillu/go-yara/v4"
	log "github.com/sirupsen/logrus"
)

var (
	scanRules *yara.Rules
	ruleFile  = flag.String("rule-file", "", "Path for compiled YARA rule file")
	ruleURI   = flag.String("rule-uri", "http://localhost/yara/current.yac", "Download URL for YARA rules")
	ruleXZ    = flag.Bool("rule-xz", false, "YARA rules are XZ compressed")
	yLogger   = log.WithFields(log.Fields{"parser": "YaraID"})
)

func init() {
	registry.Register(registry.Definition{
		Name:   "YaraID",
		Source: "confessor",
		Author: "DCSO",
		Parser: &Parser{},
	})
}

// Parser identifies samples via YARA matches.
type Parser struct{}

// Name returns the parser name
func (p *Parser) Name() string { return "YaraID" }

// ReInitialize loads the yara rules either from file or url
func (p *Parser) ReInitialize() error {
	return LoadRules(*ruleFile, *ruleXZ)
}

// Run scans the file with the loaded rule set and reports matching rule
// names.
func (p *Parser) Run(f *fileobject.FileObject) error {
	if scanRules == nil {
		if err := p.ReInitialize(); err != nil {
			return err
		}
	}

	var matchRules yara.MatchRules
	err := scanRules.ScanMem(f.Data(), yara.ScanFlags(yara.ScanFlagsFastMode),
		time.Second*20, &matchRules)
	if err != nil {
		return err
	}

	for _, m := range matchRules {
		f.Metadata().AddOther("yara_rule", m.Rule)
	}
	if len(matchRules) != 0 {
		yLogger.Debugf("%d matches for file %v found", len(matchRules), f.Name())
	}
	return nil
}
