package model

import "time"

// ObjectType enumerates the directory object categories the pipeline stores.
type ObjectType string

const (
	ObjectUser    ObjectType = "User"
	ObjectMachine ObjectType = "Machine"
	ObjectGroup   ObjectType = "Group"
	ObjectOU      ObjectType = "OU"
	ObjectGPO     ObjectType = "GPO"
	ObjectTrust   ObjectType = "Trust"
)

// DomainInfo is the single per-run record that establishes the run's ADID.
type DomainInfo struct {
	ADID       int64
	DN         string
	ObjectGUID string
	ObjectSID  string
	DomainName string
	NetBIOS    string
}

// Trust describes an inter-domain trust relationship.
type Trust struct {
	ADID             int64
	DN               string
	ObjectGUID       string
	TargetDomainName string
	TargetDomainSID  string
	TrustDirection   int
	TrustType        int
	TrustAttributes  int
}

// User is a directory user object.
type User struct {
	ADID       int64
	DN         string
	ObjectGUID string
	ObjectSID  string
	SAMAccount string
	Enabled    bool
	PwdLastSet time.Time
}

// Machine is a directory computer object.
type Machine struct {
	ADID       int64
	DN         string
	ObjectGUID string
	ObjectSID  string
	SAMAccount string
	OS         string
	Enabled    bool
}

// Delegation is a constrained-delegation target parsed from
// allowedtodelegateto, keyed by the owning principal's SID.
type Delegation struct {
	ADID   int64
	SID    string
	Target string
}

// Group is a directory security/distribution group object.
type Group struct {
	ADID       int64
	DN         string
	ObjectGUID string
	ObjectSID  string
	SAMAccount string
}

// OU is an organizational unit, carrying its raw GPLink attribute string
// (ParseGPLink turns it into GPLink rows).
type OU struct {
	ADID       int64
	DN         string
	ObjectGUID string
	GPLinkRaw  string
}

// GPO is a group policy object.
type GPO struct {
	ADID       int64
	DN         string
	ObjectGUID string
	DisplayNm  string
}

// SPNService is a standalone SPN-service record category (distinct from the
// SPN records embedded on User/Machine records; both are stored).
type SPNService struct {
	ADID       int64
	DN         string
	ObjectGUID string
	ObjectSID  string
	SPN        string
}

// SecurityDescriptorBinding is one {ad_id,guid} -> raw SD mapping.
type SecurityDescriptorBinding struct {
	ADID       int64
	GUID       string
	SID        string
	ObjectType ObjectType
	SDBytes    []byte
	SDHash     string // hex SHA-1 of the raw SD bytes (SDBytes holds their base64 text)
}

// TokenGroupEntry is one row of a subject's effective-membership token.
type TokenGroupEntry struct {
	ADID       int64
	GUID       string
	SID        string
	ObjectType ObjectType
	MemberSID  string
}

// GPLink is one {gpo-dn, order} pair parsed out of an OU's GPLink string.
type GPLink struct {
	ADID   int64
	OUGUID string
	GPODN  string
	Order  int
}
