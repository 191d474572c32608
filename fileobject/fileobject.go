// Confessor
// Copyright (c) 2016, 2025, DCSO GmbH

// Package fileobject wraps one artifact under analysis: its immutable raw
// content, derived identity hashes and the mutable analysis state (metadata,
// description, derived children) that parser components attach to it.
package fileobject

import (
	"bufio"
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/vimeo/go-magic/magic"
	"golang.org/x/crypto/sha3"
)

// HashInfo contains the identity hashes of a file object.
type HashInfo struct {
	Md5      string
	Sha1     string
	Sha256   string
	Sha512   string
	Sha3_512 string
}

var magicFiles map[string]bool
var magicMutex sync.Mutex

func init() {
	magicFiles = make(map[string]bool)
}

// FileObject is an immutable-content wrapper around one artifact plus the
// mutable analysis state established while parsing it. Content is never
// modified after construction; callers must not write to the slice returned
// by Data.
type FileObject struct {
	name        string
	data        []byte
	description string
	suppressed  bool
	children    []*FileObject
	metadata    *Metadata

	hashOnce sync.Once
	hashes   HashInfo
}

// New creates a FileObject for the given name and content.
func New(name string, data []byte) *FileObject {
	return &FileObject{
		name:     name,
		data:     data,
		metadata: newMetadata(),
	}
}

// FromFile creates a FileObject with the contents of the file at the given
// path, named after its basename.
func FromFile(path string) (*FileObject, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return New(filepath.Base(path), data), nil
}

// Name returns the file name assigned at construction.
func (f *FileObject) Name() string { return f.name }

// Data returns the raw content. The returned slice is owned by the
// FileObject and must not be modified.
func (f *FileObject) Data() []byte { return f.data }

// Size returns the content length in bytes.
func (f *FileObject) Size() int64 { return int64(len(f.data)) }

// Description returns the human-readable label of what this file is, e.g.
// "decrypted payload".
func (f *FileObject) Description() string { return f.description }

// SetDescription sets the description if none has been set yet; the
// first-set description for a file wins.
func (f *FileObject) SetDescription(desc string) {
	if f.description == "" {
		f.description = desc
	}
}

// SetDescriptionForce overwrites the description even if one was already
// set.
func (f *FileObject) SetDescriptionForce(desc string) {
	f.description = desc
}

// Suppress excludes this file from the primary report output. Suppressed
// files remain available through the file-drop channel.
func (f *FileObject) Suppress() { f.suppressed = true }

// Suppressed reports whether this file's output has been suppressed.
func (f *FileObject) Suppressed() bool { return f.suppressed }

// AddChild records a new file produced from this one (e.g. a dropper
// extracting an embedded implant) and returns the child object.
func (f *FileObject) AddChild(name string, data []byte, description string) *FileObject {
	child := New(name, data)
	child.SetDescription(description)
	f.children = append(f.children, child)
	return child
}

// Children returns the derived files in production order.
func (f *FileObject) Children() []*FileObject {
	out := make([]*FileObject, len(f.children))
	copy(out, f.children)
	return out
}

// Metadata returns the metadata builder owned by this file object.
func (f *FileObject) Metadata() *Metadata { return f.metadata }

// Hashes lazily computes all identity hashes in a single pass over the
// content, using a multiWriter.
// REF: http://marcio.io/2015/07/calculating-multiple-file-hashes-in-a-single-pass/
func (f *FileObject) Hashes() HashInfo {
	f.hashOnce.Do(func() {
		md5Hash := md5.New()
		sha1Hash := sha1.New()
		sha256Hash := sha256.New()
		sha512Hash := sha512.New()
		sha3_512Hash := sha3.New512()

		pageSize := os.Getpagesize()
		reader := bufio.NewReaderSize(bytes.NewReader(f.data), pageSize)
		multiWriter := io.MultiWriter(md5Hash, sha1Hash, sha256Hash, sha512Hash, sha3_512Hash)

		// the error return can be ignored here as we read from memory
		_, _ = io.Copy(multiWriter, reader)

		f.hashes = HashInfo{
			Md5:      hex.EncodeToString(md5Hash.Sum(nil)),
			Sha1:     hex.EncodeToString(sha1Hash.Sum(nil)),
			Sha256:   hex.EncodeToString(sha256Hash.Sum(nil)),
			Sha512:   hex.EncodeToString(sha512Hash.Sum(nil)),
			Sha3_512: hex.EncodeToString(sha3_512Hash.Sum(nil)),
		}
	})
	return f.hashes
}

// MD5 returns the hex-encoded MD5 of the content.
func (f *FileObject) MD5() string { return f.Hashes().Md5 }

// SHA256 returns the hex-encoded SHA256 of the content. It is the identity
// used for dedup during dispatch and for drop-file naming.
func (f *FileObject) SHA256() string { return f.Hashes().Sha256 }

// AddMagicFile adds a libmagic database file to be consulted by Magic.
func AddMagicFile(path string) {
	magicMutex.Lock()
	magicFiles[path] = true
	magicMutex.Unlock()
}

// Magic returns a magic string describing the content type.
func (f *FileObject) Magic() string {
	cookie := magic.Open(magic.MAGIC_ERROR | magic.MAGIC_NONE)
	defer magic.Close(cookie)
	magicMutex.Lock()
	var mf []string
	for file := range magicFiles {
		mf = append(mf, file)
	}
	magicMutex.Unlock()
	ret := magic.Load(cookie, strings.Join(mf, ":"))
	if ret != 0 {
		return "unknown file type"
	}
	return magic.Buffer(cookie, f.data)
}
