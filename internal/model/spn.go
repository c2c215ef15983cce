package model

import "strings"

// SPNRecord is a parsed servicePrincipalName string.
//
// Grammar: "class/host[:port[/name]]", split on the first "/" to get
// class and tail; within tail, detect ":" first (host vs port); within
// the port segment, split an optional "/name". With no ":", split tail
// on "/" for an optional name.
type SPNRecord struct {
	Owner string
	Class string
	Host  string
	Port  string
	Name  string
}

// ParseSPN parses a raw SPN string owned by the given SID. Returns false if
// the string has no "/" separator; malformed entries should be skipped by
// the caller, not treated as fatal.
func ParseSPN(raw, owner string) (SPNRecord, bool) {
	slash := strings.IndexByte(raw, '/')
	if slash < 0 {
		return SPNRecord{}, false
	}
	rec := SPNRecord{Owner: owner, Class: raw[:slash]}
	tail := raw[slash+1:]

	if colon := strings.IndexByte(tail, ':'); colon >= 0 {
		rec.Host = tail[:colon]
		portAndName := tail[colon+1:]
		if nameSlash := strings.IndexByte(portAndName, '/'); nameSlash >= 0 {
			rec.Port = portAndName[:nameSlash]
			rec.Name = portAndName[nameSlash+1:]
		} else {
			rec.Port = portAndName
		}
		return rec, true
	}

	if nameSlash := strings.IndexByte(tail, '/'); nameSlash >= 0 {
		rec.Host = tail[:nameSlash]
		rec.Name = tail[nameSlash+1:]
	} else {
		rec.Host = tail
	}
	return rec, true
}

// String reassembles the SPN record into its canonical "class/host[:port[/name]]"
// form, used to verify round-trip parsing.
func (r SPNRecord) String() string {
	var b strings.Builder
	b.WriteString(r.Class)
	b.WriteByte('/')
	b.WriteString(r.Host)
	if r.Port != "" {
		b.WriteByte(':')
		b.WriteString(r.Port)
		if r.Name != "" {
			b.WriteByte('/')
			b.WriteString(r.Name)
		}
	} else if r.Name != "" {
		// No port present but a name was parsed out of tail/name split.
		b.WriteByte('/')
		b.WriteString(r.Name)
	}
	return b.String()
}
