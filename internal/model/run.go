// Package model holds the typed directory-object records the enumeration
// pipeline produces and the graph primitives the path engine consumes.
package model

import "time"

// RunState is the lifecycle state of an EnumerationRun.
type RunState string

const (
	RunStarted  RunState = "STARTED"
	RunFinished RunState = "FINISHED"
	RunAborted  RunState = "ABORTED"
)

// EnumerationRun is the top-level record a directory enumeration produces.
// Its ADID is assigned when the first DomainInfo record is stored and is
// then carried on every other record from the run.
type EnumerationRun struct {
	ADID       int64
	DomainName string
	DomainSID  string
	State      RunState
	StartedAt  time.Time
	EndedAt    *time.Time
}

// Well-known relative identifiers used by the pipeline and the path engine.
// These are named constants (rather than inlined strings) specifically so
// the exclusion behavior that depends on them can be disabled in one place.
const (
	// RIDDomainUsers is the RID of the domain's "Domain Users" primary group.
	RIDDomainUsers = "513"
	// RIDDomainAdmins is the RID of the domain's "Domain Admins" group.
	RIDDomainAdmins = "512"
	// WellKnownLocalUsersSID is the well-known, domain-independent SID for
	// the local "Users" alias group. Edges with this node at either end are
	// excluded from the graph cache; kept as a named constant so the filter can be
	// disabled by a single edit.
	WellKnownLocalUsersSID = "S-1-5-32-545"
)

// DomainUsersSID returns the domain's Domain Users group SID, "<domain-sid>-513".
func DomainUsersSID(domainSID string) string {
	return domainSID + "-" + RIDDomainUsers
}

// DomainAdminsSID returns the domain's Domain Admins group SID, "<domain-sid>-512".
func DomainAdminsSID(domainSID string) string {
	return domainSID + "-" + RIDDomainAdmins
}

// DomainNameFromDN derives a dotted domain name from a root domain DN, e.g.
// "DC=corp,DC=example,DC=com" -> "corp.example.com".
func DomainNameFromDN(dn string) string {
	out := make([]byte, 0, len(dn))
	i := 0
	for i < len(dn) {
		// Skip "DC=" (case-insensitive) components; pass through label text.
		if i+3 <= len(dn) && (dn[i] == 'D' || dn[i] == 'd') && (dn[i+1] == 'C' || dn[i+1] == 'c') && dn[i+2] == '=' {
			i += 3
			continue
		}
		if dn[i] == ',' {
			out = append(out, '.')
			i++
			continue
		}
		out = append(out, dn[i])
		i++
	}
	return string(out)
}
