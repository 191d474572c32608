// Confessor
// Copyright (c) 2016, 2025, DCSO GmbH

// Package schema holds the registry of recognized metadata fields. Every
// value a parser reports has to match the declared shape of a registered
// field; the registry is populated once at startup and is read-only
// afterwards.
package schema

import (
	"fmt"
)

// FieldType describes the shape of the values a field accepts.
type FieldType int

const (
	// String is a single scalar string value.
	String FieldType = iota
	// StringList is a list of string values.
	StringList
	// TupleList is a list of fixed-position string tuples, e.g. a
	// socketaddress of (host, port, protocol).
	TupleList
	// StringMap is a free-form mapping of string keys to string values,
	// used only by the "other" catch-all field.
	StringMap
)

// MergePolicy describes how same-named values from multiple parser results
// are combined.
type MergePolicy int

const (
	// Replace keeps the first value seen and flags later, non-equal
	// values as a merge conflict.
	Replace MergePolicy = iota
	// Union collects values, deduplicating by equality and preserving
	// first-seen order.
	Union
	// Append collects tuples, deduplicating exact tuple equality.
	Append
)

// Field is one registered metadata field.
type Field struct {
	Name        string
	Type        FieldType
	Policy      MergePolicy
	Description string
	// NoDedup disables value deduplication; only used for debug, where
	// repeated messages are meaningful.
	NoDedup bool
}

// Error reports a value that could not be normalized to the shape of a
// registered field.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("schema violation for field %s: %s", e.Field, e.Reason)
}

var (
	fieldIndex map[string]Field
	fieldOrder []string
)

// The built-in field table. Order matters: it defines CSV column order and
// the ordering of structured output.
var builtinFields = []Field{
	{Name: "c2_url", Type: StringList, Policy: Union, Description: "command and control URL"},
	{Name: "c2_socketaddress", Type: TupleList, Policy: Append, Description: "command and control (host, port, protocol)"},
	{Name: "c2_address", Type: StringList, Policy: Union, Description: "command and control host or address"},
	{Name: "url", Type: StringList, Policy: Union, Description: "URL"},
	{Name: "urlpath", Type: StringList, Policy: Union, Description: "path component of a URL"},
	{Name: "socketaddress", Type: TupleList, Policy: Append, Description: "(host, port, protocol)"},
	{Name: "address", Type: StringList, Policy: Union, Description: "host or address"},
	{Name: "port", Type: TupleList, Policy: Append, Description: "(port, protocol)"},
	{Name: "listenport", Type: TupleList, Policy: Append, Description: "(listening port, protocol)"},
	{Name: "credential", Type: TupleList, Policy: Append, Description: "(username, password)"},
	{Name: "username", Type: StringList, Policy: Union, Description: "user name"},
	{Name: "password", Type: StringList, Policy: Union, Description: "password"},
	{Name: "missionid", Type: String, Policy: Replace, Description: "campaign or mission identifier"},
	{Name: "useragent", Type: String, Policy: Replace, Description: "HTTP user agent"},
	{Name: "interval", Type: String, Policy: Replace, Description: "beacon interval"},
	{Name: "version", Type: String, Policy: Replace, Description: "malware version"},
	{Name: "mutex", Type: StringList, Policy: Union, Description: "mutex name"},
	{Name: "service", Type: TupleList, Policy: Append, Description: "(name, displayname, description, image, dll)"},
	{Name: "servicename", Type: StringList, Policy: Union, Description: "service name"},
	{Name: "servicedisplayname", Type: StringList, Policy: Union, Description: "service display name"},
	{Name: "servicedescription", Type: StringList, Policy: Union, Description: "service description"},
	{Name: "serviceimage", Type: StringList, Policy: Union, Description: "service image path"},
	{Name: "servicedll", Type: StringList, Policy: Union, Description: "service DLL path"},
	{Name: "injectionprocess", Type: String, Policy: Replace, Description: "process targeted for injection"},
	{Name: "filepath", Type: StringList, Policy: Union, Description: "file path"},
	{Name: "directory", Type: StringList, Policy: Union, Description: "directory"},
	{Name: "filename", Type: StringList, Policy: Union, Description: "file name"},
	{Name: "registrykeyvalue", Type: TupleList, Policy: Append, Description: "(registry key, value)"},
	{Name: "registrykey", Type: StringList, Policy: Union, Description: "registry key"},
	{Name: "registryvalue", Type: StringList, Policy: Union, Description: "registry value"},
	{Name: "key", Type: StringList, Policy: Union, Description: "encryption key"},
	{Name: "outputfile", Type: TupleList, Policy: Append, Description: "(filename, description, sha256)"},
	{Name: "other", Type: StringMap, Policy: Union, Description: "non-standardized metadata"},
	{Name: "debug", Type: StringList, Policy: Union, Description: "debug messages", NoDedup: true},
}

func init() {
	fieldIndex = make(map[string]Field)
	for _, f := range builtinFields {
		fieldIndex[f.Name] = f
		fieldOrder = append(fieldOrder, f.Name)
	}
}

// Lookup returns the registered field for the given name.
func Lookup(name string) (Field, bool) {
	f, ok := fieldIndex[name]
	return f, ok
}

// Names returns all registered field names in registration order.
func Names() []string {
	names := make([]string, len(fieldOrder))
	copy(names, fieldOrder)
	return names
}

// Normalize checks a reported value against the declared shape of the named
// field and returns it in canonical form. A single scalar offered where a
// list is required is wrapped into a one-element list rather than rejected,
// since that is the most common plugin mistake. Any other mismatch returns
// an *Error.
func Normalize(name string, value interface{}) (interface{}, error) {
	f, ok := Lookup(name)
	if !ok {
		return nil, &Error{Field: name, Reason: "not a registered field"}
	}

	switch f.Type {
	case String:
		switch v := value.(type) {
		case string:
			return v, nil
		case []string:
			if len(v) == 1 {
				return v[0], nil
			}
			return nil, &Error{Field: name, Reason: fmt.Sprintf("expected a single string, got a list of %d", len(v))}
		}
	case StringList:
		switch v := value.(type) {
		case string:
			return []string{v}, nil
		case []string:
			return v, nil
		}
	case TupleList:
		switch v := value.(type) {
		case []string:
			return [][]string{v}, nil
		case [][]string:
			return v, nil
		}
	case StringMap:
		switch v := value.(type) {
		case map[string][]string:
			return v, nil
		case map[string]string:
			out := make(map[string][]string, len(v))
			for k, s := range v {
				out[k] = []string{s}
			}
			return out, nil
		}
	}
	return nil, &Error{Field: name, Reason: fmt.Sprintf("unsupported value type %T", value)}
}
