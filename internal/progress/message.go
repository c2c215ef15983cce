package progress

import "strconv"

// progressMessage is the wire shape published to the remote queue and
// broadcast over the websocket bridge. Type is always the fixed "LDAP"
// marker; MsgType carries the STARTED/PROGRESS/FINISHED/ABORTED variant.
// Speed is a string (a formatted items/sec float, no unit), not a JSON
// number: consumers of this wire format must tolerate that literal shape.
type progressMessage struct {
	Type          string   `json:"type"`
	MsgType       string   `json:"msg_type"`
	ADID          int64    `json:"adid"`
	DomainName    string   `json:"domain_name"`
	Finished      []string `json:"finished,omitempty"`
	Running       []string `json:"running,omitempty"`
	TotalFinished int64    `json:"total_finished"`
	Speed         string   `json:"speed,omitempty"`
}

// itemMessage builds the PROGRESS wire message for one sampled item,
// shared by the Redis queue and the websocket broadcaster.
func itemMessage(snap Snapshot, speed float64) progressMessage {
	return progressMessage{
		Type:          "LDAP",
		MsgType:       "PROGRESS",
		ADID:          snap.ADID,
		DomainName:    snap.DomainName,
		Finished:      snap.Finished,
		Running:       snap.Running,
		TotalFinished: snap.TotalFinished,
		Speed:         strconv.FormatFloat(speed, 'f', -1, 64),
	}
}

// lifecycleMessage builds the STARTED/FINISHED/ABORTED wire message.
func lifecycleMessage(event Lifecycle, snap Snapshot) progressMessage {
	return progressMessage{
		Type:          "LDAP",
		MsgType:       string(event),
		ADID:          snap.ADID,
		DomainName:    snap.DomainName,
		Finished:      snap.Finished,
		Running:       snap.Running,
		TotalFinished: snap.TotalFinished,
	}
}
