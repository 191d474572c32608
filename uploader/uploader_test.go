// Confessor
// Copyright (c) 2016, 2025, DCSO GmbH

package uploader

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DCSO/confessor/fileobject"
	"github.com/DCSO/confessor/resultdb"
	"github.com/DCSO/confessor/submitter"
)

var regionReturn = `
<?xml version="1.0" encoding="UTF-8"?>
<LocationConstraint xmlns="http://s3.amazonaws.com/doc/2006-03-01/">TEST</LocationConstraint>
`

// dropHash is a well-formed but fixed content hash for test drops.
const dropHash = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

func testEntry() resultdb.ReportEntry {
	return resultdb.ReportEntry{
		Parser:   "TestParser",
		Source:   "confessor",
		Success:  true,
		Filename: "sample.bin",
		Hashes: fileobject.HashInfo{
			Sha256: "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff",
		},
		Dropped: []resultdb.DroppedFile{
			{Name: "payload", Description: "decrypted payload", Sha256: dropHash},
		},
	}
}

func makeStub(t *testing.T, hasFile, hasEntry *bool) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf, _ := io.ReadAll(r.Body)
		if strings.Contains(r.URL.String(), dropHash+".report.json") {
			w.WriteHeader(http.StatusOK)
			if !strings.Contains(string(buf), "TestParser") {
				t.Error("incomplete report entry")
			} else {
				*hasEntry = true
			}
		} else if strings.Contains(r.URL.String(), dropHash) {
			w.WriteHeader(http.StatusOK)
			if string(buf) != "decrypted payload bytes" {
				t.Error("no file")
			} else {
				*hasFile = true
			}
		} else if strings.Contains(r.URL.String(), "location") {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(regionReturn))
		} else {
			w.WriteHeader(http.StatusOK)
		}
	}))
}

func TestUpload(t *testing.T) {
	hasFile := false
	hasEntry := false

	s := submitter.MakeDummySubmitter()

	apiStub := makeStub(t, &hasFile, &hasEntry)
	defer apiStub.Close()

	dropdir, err := os.MkdirTemp("", "dropdir")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dropdir)

	scratchdir, err := os.MkdirTemp("", "scratchdir")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(scratchdir)

	u, err := MakeS3Uploader(S3Credentials{
		Endpoint:   strings.Replace(apiStub.URL, "http://", "", -1),
		BucketName: "incoming",
		Region:     "TEST",
	}, false, dropdir, scratchdir, s)
	if err != nil {
		t.Fatal(err)
	}

	droppedPath := filepath.Join(dropdir, dropHash+".bin")
	err = os.WriteFile(droppedPath, []byte("decrypted payload bytes"), 0644)
	if err != nil {
		t.Fatal(err)
	}

	entry := testEntry()
	drop := entry.Dropped[0]
	drop.Path = droppedPath
	err = u.Enqueue(entry, drop)
	if err != nil {
		t.Fatal(err)
	}

	u.Stop()

	if !hasFile || !hasEntry {
		t.Fatal("no complete set of file and report entry")
	}
}

func TestUploaderBacklog(t *testing.T) {
	hasFile := false
	hasEntry := false

	s := submitter.MakeDummySubmitter()

	apiStub := makeStub(t, &hasFile, &hasEntry)
	defer apiStub.Close()

	dropdir, err := os.MkdirTemp("", "dropdir")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dropdir)

	scratchdir, err := os.MkdirTemp("", "scratchdir")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(scratchdir)

	// simulate scratch files left over from an interrupted run
	entryJSON, _ := json.Marshal(testEntry())
	os.WriteFile(filepath.Join(scratchdir, dropHash+".report.json"), entryJSON, 0644)
	os.WriteFile(filepath.Join(scratchdir, dropHash), []byte("decrypted payload bytes"), 0644)

	u, err := MakeS3Uploader(S3Credentials{
		Endpoint:   strings.Replace(apiStub.URL, "http://", "", -1),
		BucketName: "incoming",
		Region:     "TEST",
	}, false, dropdir, scratchdir, s)
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(2 * time.Second)

	u.Stop()

	if !hasFile || !hasEntry {
		t.Fatal("no complete set of file and report entry")
	}
}
