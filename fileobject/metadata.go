// Confessor
// Copyright (c) 2016, 2025, DCSO GmbH

package fileobject

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/DCSO/confessor/schema"
)

var urlRe = regexp.MustCompile(`[a-z.-]{1,40}://(\[?[^/]+\]?)(/[^?]+)?`)
var portRe = regexp.MustCompile(`^[0-9]{1,5}$`)

// Metadata collects the standardized fields a parser component extracts
// from one file. Each FileObject owns exactly one builder; it is handed by
// exclusive reference into component calls and never aliased across files.
// Values are validated against the schema on insertion; violations are
// recorded as warnings, never silently dropped or coerced.
type Metadata struct {
	fields   map[string]interface{}
	order    []string
	warnings []string
}

func newMetadata() *Metadata {
	return &Metadata{
		fields: make(map[string]interface{}),
	}
}

// Add reports a metadata item under the given schema-registered field name.
// Accepted value types are string, []string (one tuple for tuple fields, or
// a value list for list fields) and [][]string.
func (m *Metadata) Add(key string, value interface{}) {
	field, ok := schema.Lookup(key)
	if !ok {
		m.warn("cannot add metadata, %s is not a registered field", key)
		return
	}
	norm, err := schema.Normalize(key, value)
	if err != nil {
		m.warn("%s", err)
		return
	}

	switch field.Type {
	case schema.String:
		m.setScalar(field, norm.(string))
	case schema.StringList:
		for _, v := range norm.([]string) {
			m.appendString(field, v)
		}
	case schema.TupleList:
		for _, t := range norm.([][]string) {
			m.appendTuple(field, t)
		}
	case schema.StringMap:
		for k, vals := range norm.(map[string][]string) {
			for _, v := range vals {
				m.AddOther(k, v)
			}
		}
	}

	m.derive(field, norm)
}

// AddOther records a non-standardized key/value pair under the "other"
// catch-all field. Repeated values for the same key are deduplicated.
func (m *Metadata) AddOther(key, value string) {
	other, ok := m.fields["other"].(map[string][]string)
	if !ok {
		other = make(map[string][]string)
		m.fields["other"] = other
		m.order = append(m.order, "other")
	}
	for _, existing := range other[key] {
		if existing == value {
			return
		}
	}
	other[key] = append(other[key], value)
}

// Debug records a debug message in the report output.
func (m *Metadata) Debug(message string) {
	m.appendString(mustField("debug"), message)
}

// Fields returns a copy of the current field mapping in canonical shapes.
func (m *Metadata) Fields() map[string]interface{} {
	out := make(map[string]interface{}, len(m.fields))
	for k, v := range m.fields {
		switch vv := v.(type) {
		case []string:
			out[k] = append([]string(nil), vv...)
		case [][]string:
			cp := make([][]string, len(vv))
			for i, t := range vv {
				cp[i] = append([]string(nil), t...)
			}
			out[k] = cp
		case map[string][]string:
			cp := make(map[string][]string, len(vv))
			for mk, mv := range vv {
				cp[mk] = append([]string(nil), mv...)
			}
			out[k] = cp
		default:
			out[k] = v
		}
	}
	return out
}

// FieldOrder returns the field names in first-seen order.
func (m *Metadata) FieldOrder() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Warnings returns the schema violations and advisories recorded so far.
func (m *Metadata) Warnings() []string {
	out := make([]string, len(m.warnings))
	copy(out, m.warnings)
	return out
}

func (m *Metadata) warn(format string, args ...interface{}) {
	m.warnings = append(m.warnings, fmt.Sprintf(format, args...))
}

func (m *Metadata) setScalar(field schema.Field, value string) {
	existing, ok := m.fields[field.Name]
	if !ok {
		m.fields[field.Name] = value
		m.order = append(m.order, field.Name)
		return
	}
	if existing.(string) != value {
		m.warn("conflicting values for %s: keeping %q, discarding %q",
			field.Name, existing.(string), value)
	}
}

func (m *Metadata) appendString(field schema.Field, value string) {
	list, ok := m.fields[field.Name].([]string)
	if !ok {
		m.order = append(m.order, field.Name)
	}
	if !field.NoDedup {
		for _, existing := range list {
			if existing == value {
				return
			}
		}
	}
	m.fields[field.Name] = append(list, value)
}

func (m *Metadata) appendTuple(field schema.Field, tuple []string) {
	list, ok := m.fields[field.Name].([][]string)
	if !ok {
		m.order = append(m.order, field.Name)
	}
	for _, existing := range list {
		if tupleEqual(existing, tuple) {
			return
		}
	}
	m.fields[field.Name] = append(list, tuple)
}

func tupleEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func mustField(name string) schema.Field {
	f, ok := schema.Lookup(name)
	if !ok {
		panic("unregistered builtin field: " + name)
	}
	return f
}

// derive adds the subfields implied by well-known fields, so that parsers
// reporting a compound value (a URL, a credential pair, a service record)
// also populate the more granular fields automatically.
func (m *Metadata) derive(field schema.Field, norm interface{}) {
	switch field.Type {
	case schema.String:
		m.deriveString(field.Name, norm.(string))
	case schema.StringList:
		for _, v := range norm.([]string) {
			m.deriveString(field.Name, v)
		}
	case schema.TupleList:
		for _, t := range norm.([][]string) {
			m.deriveTuple(field.Name, t)
		}
	}
}

func (m *Metadata) deriveString(name, value string) {
	switch name {
	case "filepath":
		// split on both separator styles so that Windows paths are
		// handled correctly regardless of the analysis platform
		m.Add("filename", winBase(value))
		if dir := winDir(value); dir != "" {
			m.Add("directory", dir)
		}
	case "c2_url":
		m.Add("url", value)
		m.deriveURL(value, true)
	case "url":
		m.deriveURL(value, false)
	case "c2_address":
		m.Add("address", value)
	case "servicedll":
		m.Add("filepath", value)
	case "serviceimage":
		// look for the first .exe in the value; unreliable but catches
		// images with appended arguments
		if idx := strings.Index(strings.ToLower(value), ".exe"); idx >= 0 {
			m.Add("filepath", value[:idx+4])
		}
	}
}

func (m *Metadata) deriveTuple(name string, values []string) {
	switch name {
	case "c2_socketaddress":
		m.Add("socketaddress", values)
		if len(values) > 0 {
			m.Add("c2_address", values[0])
		}
	case "socketaddress":
		if len(values) != 3 {
			m.warn("expected three values in socketaddress, received %d", len(values))
		}
		if len(values) > 0 {
			m.Add("address", values[0])
		}
		if len(values) >= 3 {
			m.Add("port", []string{values[1], values[2]})
		}
	case "credential":
		if len(values) != 2 {
			m.warn("expected two values in credential, received %d", len(values))
		}
		if len(values) > 0 {
			m.Add("username", values[0])
		}
		if len(values) >= 2 {
			m.Add("password", values[1])
		}
	case "port", "listenport":
		if len(values) != 2 {
			m.warn("expected two values in %s, received %d", name, len(values))
		}
		if len(values) > 0 {
			if !portRe.MatchString(values[0]) {
				m.warn("expected %s to be a number between 0 and 65535, got %q", name, values[0])
			} else if n, _ := strconv.Atoi(values[0]); n > 65535 {
				m.warn("expected %s to be a number between 0 and 65535, got %q", name, values[0])
			}
		}
		if len(values) >= 2 {
			switch values[1] {
			case "tcp", "udp", "icmp":
			default:
				m.warn("expected %s protocol to be tcp, udp or icmp, got %q", name, values[1])
			}
		}
	case "registrykeyvalue":
		if len(values) > 0 {
			m.Add("registrykey", values[0])
		}
		if len(values) >= 2 {
			m.Add("registryvalue", values[1])
		}
	case "service":
		subfields := []string{"servicename", "servicedisplayname",
			"servicedescription", "serviceimage", "servicedll"}
		if len(values) != len(subfields) {
			m.warn("expected %d values in service, received %d", len(subfields), len(values))
		}
		for i, sub := range subfields {
			if i < len(values) && values[i] != "" {
				m.Add(sub, values[i])
			}
		}
	}
}

// deriveURL extracts host, port and path information from a URL value.
func (m *Metadata) deriveURL(value string, c2 bool) {
	match := urlRe.FindStringSubmatch(value)
	if match == nil {
		// a parse miss is informational, not a parser failure
		m.Debug(fmt.Sprintf("error parsing as url: %s", value))
		return
	}
	host := match[1]
	if host != "" {
		if strings.HasPrefix(host, "[") {
			// ipv6 literal, e.g. [fe80::20c:1234:5678:9abc]:80
			parts := strings.SplitN(host, "]", 2)
			addr := strings.TrimPrefix(parts[0], "[")
			if len(parts) > 1 && strings.HasPrefix(parts[1], ":") && len(parts[1]) > 1 {
				m.addSocketAddress(addr, parts[1][1:], c2)
			} else {
				m.addAddress(addr, c2)
			}
		} else {
			parts := strings.SplitN(host, ":", 2)
			if len(parts) > 1 && parts[1] != "" {
				m.addSocketAddress(parts[0], parts[1], c2)
			} else {
				m.addAddress(parts[0], c2)
			}
		}
	}
	if match[2] != "" {
		m.Add("urlpath", match[2])
	}
}

func (m *Metadata) addSocketAddress(host, port string, c2 bool) {
	if c2 {
		m.Add("c2_socketaddress", []string{host, port, "tcp"})
	} else {
		m.Add("socketaddress", []string{host, port, "tcp"})
	}
}

func (m *Metadata) addAddress(host string, c2 bool) {
	if c2 {
		m.Add("c2_address", host)
	} else {
		m.Add("address", host)
	}
}

// winBase returns the last element of a path, treating both backslash and
// forward slash as separators.
func winBase(path string) string {
	idx := strings.LastIndexAny(path, `\/`)
	return path[idx+1:]
}

// winDir returns the directory part of a path, treating both backslash and
// forward slash as separators.
func winDir(path string) string {
	idx := strings.LastIndexAny(path, `\/`)
	if idx < 0 {
		return ""
	}
	return path[:idx]
}
