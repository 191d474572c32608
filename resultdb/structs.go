// Confessor
// Copyright (c) 2016, 2025, DCSO GmbH

package resultdb

import (
	"time"

	"github.com/DCSO/confessor/fileobject"
)

// ReportEntry is the persisted outcome of running one parser against one
// sample.
type ReportEntry struct {
	Parser   string
	Source   string
	Success  bool
	Time     time.Time
	Filename string
	Size     int64
	Hashes   fileobject.HashInfo
	Magic    string
	Metadata map[string]interface{} `json:"Metadata,omitempty"`
	Warnings []string               `json:"Warnings,omitempty"`
	Dropped  []DroppedFile          `json:"Dropped,omitempty"`
	Uploaded bool
	// UploadLocation records where the dropped files were uploaded to.
	UploadLocation string `json:"UploadLocation,omitempty"`
}

// DroppedFile records one derived file written to the file-drop channel.
type DroppedFile struct {
	Name        string
	Description string
	Sha256      string
	Path        string `json:"Path,omitempty"`
}
