package enum

import "github.com/adtrails/adtrails/internal/model"

// MessageKind tags the variant carried by a Message.
type MessageKind string

const (
	MsgDomainInfo  MessageKind = "DOMAININFO"
	MsgTrust       MessageKind = "TRUSTS"
	MsgUser        MessageKind = "USER"
	MsgMachine     MessageKind = "MACHINE"
	MsgGroup       MessageKind = "GROUP"
	MsgOU          MessageKind = "OU"
	MsgGPO         MessageKind = "GPO"
	MsgSPNService  MessageKind = "SPNSERVICE"
	MsgSD          MessageKind = "SD"
	MsgMembership  MessageKind = "MEMBERSHIP"
	MsgException   MessageKind = "EXCEPTION"
	MsgCatFinished MessageKind = "CATEGORY_FINISHED"
	MsgJobFinished MessageKind = "JOB_FINISHED"
)

// Message is one item on the worker->manager output channel. Only the
// fields relevant to Kind are populated.
type Message struct {
	Kind     MessageKind
	Category Category

	DomainInfo model.DomainInfo
	Trust      model.Trust
	User       model.User
	UserSPNs   []model.SPNRecord
	Machine    model.Machine
	MachineSPNs []model.SPNRecord
	Delegations []model.Delegation
	Group      model.Group
	OU         model.OU
	GPO        model.GPO
	SPNService model.SPNService
	SD         securityDescriptorPayload
	Membership model.TokenGroupEntry

	Err error
}

// securityDescriptorPayload is the raw SD bytes paired with the object
// identity the SDS job targeted, before SHA-1/base64 conversion into a
// model.SecurityDescriptorBinding (done by the Manager so the worker
// stays free of persistence concerns).
type securityDescriptorPayload struct {
	GUID       string
	SID        string
	ObjectType model.ObjectType
	Raw        []byte
}
