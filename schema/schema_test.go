// Confessor
// Copyright (c) 2016, 2025, DCSO GmbH

package schema

import (
	"testing"
)

func TestLookup(t *testing.T) {
	f, ok := Lookup("c2_address")
	if !ok {
		t.Fatal("c2_address not registered")
	}
	if f.Type != StringList || f.Policy != Union {
		t.Fatalf("unexpected field definition: %+v", f)
	}

	if _, ok = Lookup("bogusfield"); ok {
		t.Fatal("bogusfield should not be registered")
	}
}

func TestNamesOrder(t *testing.T) {
	names := Names()
	if len(names) == 0 {
		t.Fatal("no registered fields")
	}
	// registration order starts with the c2 fields and ends with the
	// catch-alls
	if names[0] != "c2_url" {
		t.Fatalf("expected c2_url first, got %s", names[0])
	}
	if names[len(names)-1] != "debug" {
		t.Fatalf("expected debug last, got %s", names[len(names)-1])
	}
}

func TestNormalizeWrapsScalar(t *testing.T) {
	v, err := Normalize("mutex", "my_mutex")
	if err != nil {
		t.Fatal(err)
	}
	list, ok := v.([]string)
	if !ok || len(list) != 1 || list[0] != "my_mutex" {
		t.Fatalf("expected one-element list, got %#v", v)
	}
}

func TestNormalizeWrapsTuple(t *testing.T) {
	v, err := Normalize("socketaddress", []string{"10.0.0.1", "80", "tcp"})
	if err != nil {
		t.Fatal(err)
	}
	tuples, ok := v.([][]string)
	if !ok || len(tuples) != 1 || tuples[0][0] != "10.0.0.1" {
		t.Fatalf("expected one-element tuple list, got %#v", v)
	}
}

func TestNormalizeRejectsWrongShape(t *testing.T) {
	_, err := Normalize("version", []string{"1.0", "2.0"})
	if err == nil {
		t.Fatal("expected error for list offered to scalar field")
	}
	if _, ok := err.(*Error); !ok {
		t.Fatalf("expected *Error, got %T", err)
	}

	_, err = Normalize("nosuchfield", "x")
	if err == nil {
		t.Fatal("expected error for unregistered field")
	}
}

func TestNormalizeStringMap(t *testing.T) {
	v, err := Normalize("other", map[string]string{"foo": "bar"})
	if err != nil {
		t.Fatal(err)
	}
	mapped, ok := v.(map[string][]string)
	if !ok || len(mapped["foo"]) != 1 || mapped["foo"][0] != "bar" {
		t.Fatalf("unexpected normalization result: %#v", v)
	}
}
