// Confessor
// Copyright (c) 2016, 2025, DCSO GmbH

// Package xzdropper implements a dispatcher-style parser for droppers that
// carry their implant as an embedded xz stream. The Dropper component
// carves and decompresses the payload; the Implant component extracts the
// configuration from it.
package xzdropper

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/DCSO/confessor/fileobject"
	"github.com/DCSO/confessor/registry"

	"github.com/xi2/xz"
	log "github.com/sirupsen/logrus"
)

var xzMagic = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}

var dLogger = log.WithFields(log.Fields{"parser": "XZDropper"})

func init() {
	registry.Register(registry.Definition{
		Name:   "XZDropper",
		Source: "confessor",
		Author: "DCSO",
		Components: []registry.Component{
			&Dropper{},
			&Implant{},
		},
	})
}

// Dropper carves an embedded xz stream out of a sample and adds the
// decompressed content as a derived file. The intermediate payload is
// suppressed from primary output; its extracted configuration is still
// merged into the report.
type Dropper struct{}

// Name returns the component name
func (d *Dropper) Name() string { return "Dropper" }

// Run carves and decompresses the embedded payload, if any.
func (d *Dropper) Run(f *fileobject.FileObject) error {
	idx := bytes.Index(f.Data(), xzMagic)
	if idx < 0 {
		// nothing embedded; this may already be the payload
		return nil
	}

	reader, err := xz.NewReader(bytes.NewReader(f.Data()[idx:]), 0)
	if err != nil {
		return fmt.Errorf("opening embedded xz stream: %v", err)
	}
	payload, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("decompressing embedded xz stream: %v", err)
	}

	child := f.AddChild(f.Name()+"_payload", payload, "decrypted payload")
	child.Suppress()
	dLogger.Debugf("carved %d byte payload at offset %d of %s", len(payload), idx, f.Name())
	return nil
}

// Implant extracts the key=value configuration the implant payload
// carries.
type Implant struct{}

// Name returns the component name
func (i *Implant) Name() string { return "Implant" }

// Run parses the configuration lines of an implant payload. Files that do
// not look like an implant configuration are left alone.
func (i *Implant) Run(f *fileobject.FileObject) error {
	if !bytes.Contains(f.Data(), []byte("c2=")) {
		return nil
	}

	meta := f.Metadata()
	scanner := bufio.NewScanner(bytes.NewReader(f.Data()))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.Contains(line, "=") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		key, value := parts[0], parts[1]
		switch key {
		case "c2":
			if strings.Contains(value, "://") {
				meta.Add("c2_url", value)
			} else {
				meta.Add("c2_address", value)
			}
		case "c2_url":
			meta.Add("c2_url", value)
		case "mutex":
			meta.Add("mutex", value)
		case "version":
			meta.Add("version", value)
		case "key":
			meta.Add("key", value)
		case "useragent":
			meta.Add("useragent", value)
		case "missionid":
			meta.Add("missionid", value)
		case "interval":
			meta.Add("interval", value)
		default:
			meta.AddOther(key, value)
		}
	}
	return scanner.Err()
}
