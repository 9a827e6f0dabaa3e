// File: httpheader/header.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Minimal header line parsing and lookup. The wrapped transport engine
// delivers raw "Name: value" lines; this package splits and matches them
// without pulling in a full HTTP stack.

package httpheader

import "strings"

// Header is one parsed response header.
type Header struct {
	Name  string
	Value string
}

// Parse splits one "Name: value" line. Leading/trailing whitespace around
// the value and any trailing CRLF are trimmed. Lines without a colon, and
// the blank end-of-headers line, report ok == false.
func Parse(line string) (h Header, ok bool) {
	line = strings.TrimRight(line, "\r\n")
	i := strings.IndexByte(line, ':')
	if i <= 0 {
		return Header{}, false
	}
	name := strings.TrimSpace(line[:i])
	if name == "" {
		return Header{}, false
	}
	return Header{Name: name, Value: strings.TrimSpace(line[i+1:])}, true
}

// Set is an ordered collection of headers as received.
type Set []Header

// Add parses line and appends it if it is a valid header.
func (s *Set) Add(line string) bool {
	h, ok := Parse(line)
	if ok {
		*s = append(*s, h)
	}
	return ok
}

// Get returns the value of the first header matching name
// case-insensitively, or "" if absent.
func (s Set) Get(name string) string {
	for _, h := range s {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// Has reports whether a header with the given name is present.
func (s Set) Has(name string) bool {
	for _, h := range s {
		if strings.EqualFold(h.Name, name) {
			return true
		}
	}
	return false
}
