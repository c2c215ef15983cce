// Package directory specifies the Directory Client interface the
// Enumeration Worker consumes. The LDAP client implementation itself
// (connection, search, entry parsing) is an external collaborator; this
// package defines only the interface and the entry shapes the worker
// normalizes into model records.
package directory

import "context"

// RawEntry is the subset of an LDAP search result the worker normalizes
// into a typed model record. Attribute values are pre-decoded strings or
// byte slices; multi-valued attributes arrive as string slices.
type RawEntry struct {
	DN         string
	ObjectGUID string
	ObjectSID  string
	Attrs      map[string]interface{}
}

// Result is one item yielded by a lazy asynchronous directory enumeration:
// a (record, error-or-nil) pair. A non-nil Err means this particular entry
// failed to parse/fetch; the caller should skip it and continue draining
// the sequence.
type Result struct {
	Entry RawEntry
	Err   error
}

// SDRequest identifies one object whose security descriptor is requested.
type SDRequest struct {
	DN         string
	GUID       string
	SID        string
	ObjectType string
}

// Client is the external Directory Client collaborator. Every Get* method
// streams results on the returned channel and closes it when the
// underlying LDAP search completes or ctx is cancelled.
type Client interface {
	GetAllUsers(ctx context.Context) <-chan Result
	GetAllMachines(ctx context.Context) <-chan Result
	GetAllGroups(ctx context.Context) <-chan Result
	GetAllOUs(ctx context.Context) <-chan Result
	GetAllGPOs(ctx context.Context) <-chan Result
	GetAllSPNEntries(ctx context.Context) <-chan Result
	GetAllTrusts(ctx context.Context) <-chan Result
	GetAllTokenGroups(ctx context.Context) <-chan Result
	GetTokenGroups(ctx context.Context, dn string) <-chan Result

	GetADInfo(ctx context.Context) (RawEntry, error)
	GetObjectACLByDN(ctx context.Context, dn string) ([]byte, error)

	// Close releases the underlying LDAP session.
	Close() error
}
