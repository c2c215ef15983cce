package directory

import (
	"context"
	"testing"
	"time"
)

func TestMockStreamsAllEntries(t *testing.T) {
	m := &Mock{
		Users: []RawEntry{
			{DN: "CN=alice,DC=corp,DC=example,DC=com"},
			{DN: "CN=bob,DC=corp,DC=example,DC=com"},
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var got []string
	for r := range m.GetAllUsers(ctx) {
		if r.Err != nil {
			t.Fatalf("unexpected error: %v", r.Err)
		}
		got = append(got, r.Entry.DN)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 users, got %d", len(got))
	}
}

func TestMockGetTokenGroupsFiltersByDN(t *testing.T) {
	m := &Mock{
		TokenGroups: []RawEntry{
			{DN: "CN=alice,DC=corp,DC=example,DC=com", ObjectSID: "S-1-5-21-1-2-3-513"},
			{DN: "CN=bob,DC=corp,DC=example,DC=com", ObjectSID: "S-1-5-21-1-2-3-512"},
		},
	}
	ctx := context.Background()
	var got []RawEntry
	for r := range m.GetTokenGroups(ctx, "CN=alice,DC=corp,DC=example,DC=com") {
		got = append(got, r.Entry)
	}
	if len(got) != 1 || got[0].ObjectSID != "S-1-5-21-1-2-3-513" {
		t.Fatalf("expected single filtered entry, got %+v", got)
	}
}

func TestMockGetADInfoPropagatesError(t *testing.T) {
	wantErr := context.DeadlineExceeded
	m := &Mock{ADInfoErr: wantErr}
	_, err := m.GetADInfo(context.Background())
	if err != wantErr {
		t.Fatalf("expected propagated error, got %v", err)
	}
}

func TestMockClose(t *testing.T) {
	m := &Mock{}
	if err := m.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !m.ClosedCalled {
		t.Fatalf("expected Close to be recorded")
	}
}
