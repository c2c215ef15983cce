package directory

import "context"

// Mock is a test double implementing Client entirely from in-memory
// fixtures, used because a real LDAP client is outside this module's
// scope.
type Mock struct {
	Users        []RawEntry
	Machines     []RawEntry
	Groups       []RawEntry
	OUs          []RawEntry
	GPOs         []RawEntry
	SPNEntries   []RawEntry
	Trusts       []RawEntry
	TokenGroups  []RawEntry
	ADInfo       RawEntry
	ADInfoErr    error
	ACLByDN      map[string][]byte
	ACLErr       error
	ClosedCalled bool
}

func stream(ctx context.Context, entries []RawEntry) <-chan Result {
	out := make(chan Result, len(entries))
	go func() {
		defer close(out)
		for _, e := range entries {
			select {
			case <-ctx.Done():
				return
			case out <- Result{Entry: e}:
			}
		}
	}()
	return out
}

func (m *Mock) GetAllUsers(ctx context.Context) <-chan Result       { return stream(ctx, m.Users) }
func (m *Mock) GetAllMachines(ctx context.Context) <-chan Result    { return stream(ctx, m.Machines) }
func (m *Mock) GetAllGroups(ctx context.Context) <-chan Result      { return stream(ctx, m.Groups) }
func (m *Mock) GetAllOUs(ctx context.Context) <-chan Result         { return stream(ctx, m.OUs) }
func (m *Mock) GetAllGPOs(ctx context.Context) <-chan Result        { return stream(ctx, m.GPOs) }
func (m *Mock) GetAllSPNEntries(ctx context.Context) <-chan Result  { return stream(ctx, m.SPNEntries) }
func (m *Mock) GetAllTrusts(ctx context.Context) <-chan Result      { return stream(ctx, m.Trusts) }
func (m *Mock) GetAllTokenGroups(ctx context.Context) <-chan Result { return stream(ctx, m.TokenGroups) }

func (m *Mock) GetTokenGroups(ctx context.Context, dn string) <-chan Result {
	var out []RawEntry
	for _, e := range m.TokenGroups {
		if e.DN == dn {
			out = append(out, e)
		}
	}
	return stream(ctx, out)
}

func (m *Mock) GetADInfo(ctx context.Context) (RawEntry, error) {
	return m.ADInfo, m.ADInfoErr
}

func (m *Mock) GetObjectACLByDN(ctx context.Context, dn string) ([]byte, error) {
	if m.ACLErr != nil {
		return nil, m.ACLErr
	}
	return m.ACLByDN[dn], nil
}

func (m *Mock) Close() error {
	m.ClosedCalled = true
	return nil
}
