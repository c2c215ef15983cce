package model

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
)

// NewSecurityDescriptorBinding builds a binding from raw SD bytes, computing
// the SHA-1 hash used for change detection and storing the base64 envelope
// the Persistence Gateway writes to the sd_bytes column.
func NewSecurityDescriptorBinding(adID int64, guid, sid string, ot ObjectType, raw []byte) SecurityDescriptorBinding {
	sum := sha1.Sum(raw)
	return SecurityDescriptorBinding{
		ADID:       adID,
		GUID:       guid,
		SID:        sid,
		ObjectType: ot,
		SDBytes:    []byte(base64.StdEncoding.EncodeToString(raw)),
		SDHash:     hex.EncodeToString(sum[:]),
	}
}
