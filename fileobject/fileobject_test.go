// Confessor
// Copyright (c) 2016, 2025, DCSO GmbH

package fileobject

import (
	"os"
	"path/filepath"
	"testing"
)

func TestHashes(t *testing.T) {
	f := New("sample.bin", []byte("foo bar"))
	h := f.Hashes()
	if h.Md5 != "327b6f07435811239bc47e1544353273" {
		t.Fatalf("unexpected md5: %s", h.Md5)
	}
	if h.Sha256 != "fbc1a9f858ea9e177916964bd88c3d37b91a1e84412765e29950777f265c4b75" {
		t.Fatalf("unexpected sha256: %s", h.Sha256)
	}
	if h.Sha1 == "" || h.Sha512 == "" || h.Sha3_512 == "" {
		t.Fatal("incomplete hash set")
	}
	// hashes are stable for the object's lifetime
	if f.SHA256() != h.Sha256 {
		t.Fatal("hash changed between calls")
	}
}

func TestFromFile(t *testing.T) {
	dir, err := os.MkdirTemp("", "fileobject")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "dropper.exe")
	if err = os.WriteFile(path, []byte("content"), 0644); err != nil {
		t.Fatal(err)
	}

	f, err := FromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if f.Name() != "dropper.exe" {
		t.Fatalf("unexpected name: %s", f.Name())
	}
	if string(f.Data()) != "content" {
		t.Fatal("unexpected content")
	}
}

func TestDescriptionFirstSetWins(t *testing.T) {
	f := New("x", []byte("x"))
	f.SetDescription("decrypted payload")
	f.SetDescription("something else")
	if f.Description() != "decrypted payload" {
		t.Fatalf("first-set description should win, got %q", f.Description())
	}
	f.SetDescriptionForce("something else")
	if f.Description() != "something else" {
		t.Fatal("forced description should overwrite")
	}
}

func TestChildren(t *testing.T) {
	parent := New("dropper", []byte("outer"))
	child := parent.AddChild("implant", []byte("inner"), "decrypted payload")
	if child.Description() != "decrypted payload" {
		t.Fatal("child description not set")
	}
	if child.Suppressed() {
		t.Fatal("child should not start suppressed")
	}
	child.Suppress()
	if !child.Suppressed() {
		t.Fatal("child should be suppressed")
	}

	children := parent.Children()
	if len(children) != 1 || children[0] != child {
		t.Fatalf("unexpected children: %v", children)
	}
}
