package model

// EdgeLookup assigns a stable integer node id to an (ad_id, oid) pair. It is
// the single resolver between integer node ids used by the graph and the
// domain SIDs/DNs/GUIDs ("oid") they represent.
type EdgeLookup struct {
	ID         int64
	ADID       int64
	OID        string // usually a SID, sometimes a DN or GUID
	ObjectType ObjectType
}

// Edge is one labelled relationship between two EdgeLookup ids. Multiple
// labels between the same (src,dst) pair are permitted (multi-edge).
type Edge struct {
	GraphID int64
	ADID    int64
	SrcID   int64
	DstID   int64
	Label   string
}
