package model

import "strings"

// ParseGPLink parses an OU's GPLink attribute string into ordered
// {gpo-dn, order} pairs.
//
// Grammar: zero or more "[<gp>;<order>]" segments; <gp> matches "{GUID}"
// and is extracted verbatim. Segments that do not contain a well-formed
// "{...}" guid are skipped; parse errors here are non-fatal.
func ParseGPLink(adID int64, ouGUID, raw string) []GPLink {
	var links []GPLink
	rest := raw
	for {
		open := strings.IndexByte(rest, '[')
		if open < 0 {
			break
		}
		close := strings.IndexByte(rest[open:], ']')
		if close < 0 {
			break
		}
		segment := rest[open+1 : open+close]
		rest = rest[open+close+1:]

		semi := strings.LastIndexByte(segment, ';')
		if semi < 0 {
			continue
		}
		gp := segment[:semi]
		orderStr := segment[semi+1:]

		guidStart := strings.IndexByte(gp, '{')
		guidEnd := strings.IndexByte(gp, '}')
		if guidStart < 0 || guidEnd < 0 || guidEnd < guidStart {
			continue
		}
		gpoDN := gp[guidStart : guidEnd+1]

		order := 0
		neg := false
		i := 0
		if i < len(orderStr) && orderStr[i] == '-' {
			neg = true
			i++
		}
		valid := i < len(orderStr)
		for ; i < len(orderStr); i++ {
			c := orderStr[i]
			if c < '0' || c > '9' {
				valid = false
				break
			}
			order = order*10 + int(c-'0')
		}
		if !valid {
			continue
		}
		if neg {
			order = -order
		}

		links = append(links, GPLink{ADID: adID, OUGUID: ouGUID, GPODN: gpoDN, Order: order})
	}
	return links
}
