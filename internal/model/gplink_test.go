package model

import "testing"

func TestParseGPLinkScenario(t *testing.T) {
	raw := "[cn=foo,{11111111-1111-1111-1111-111111111111};0][cn=bar,{22222222-2222-2222-2222-222222222222};2]"
	links := ParseGPLink(7, "OU1", raw)
	if len(links) != 2 {
		t.Fatalf("expected 2 links, got %d: %+v", len(links), links)
	}
	if links[0].GPODN != "{11111111-1111-1111-1111-111111111111}" || links[0].Order != 0 {
		t.Fatalf("unexpected first link: %+v", links[0])
	}
	if links[1].GPODN != "{22222222-2222-2222-2222-222222222222}" || links[1].Order != 2 {
		t.Fatalf("unexpected second link: %+v", links[1])
	}
	for _, l := range links {
		if l.ADID != 7 || l.OUGUID != "OU1" {
			t.Fatalf("unexpected ad_id/ou_guid on %+v", l)
		}
	}
}

func TestParseGPLinkEmpty(t *testing.T) {
	if links := ParseGPLink(1, "OU1", ""); len(links) != 0 {
		t.Fatalf("expected no links, got %+v", links)
	}
}

func TestParseGPLinkSkipsMalformedSegment(t *testing.T) {
	raw := "[no-guid-here;0][cn=bar,{22222222-2222-2222-2222-222222222222};2]"
	links := ParseGPLink(1, "OU1", raw)
	if len(links) != 1 {
		t.Fatalf("expected 1 surviving link, got %d: %+v", len(links), links)
	}
	if links[0].GPODN != "{22222222-2222-2222-2222-222222222222}" {
		t.Fatalf("unexpected link: %+v", links[0])
	}
}

func TestDomainNameFromDN(t *testing.T) {
	if got := DomainNameFromDN("DC=corp,DC=example,DC=com"); got != "corp.example.com" {
		t.Fatalf("got %q", got)
	}
}
