// ABOUTME: Hound control protocol message type definitions
// ABOUTME: JSON requests and responses exchanged over the control websocket
package protocol

import "github.com/Resonate-Protocol/hound/pkg/hound"

// Version is bumped on incompatible message changes
const Version = 1

// Request types
const (
	TypeServerInfo      = "server/info"
	TypeListSources     = "list/sources"
	TypeListSinks       = "list/sinks"
	TypeListConnections = "list/connections"
	TypeListDevices     = "list/devices"
	TypeConnect         = "connect"
	TypeDisconnect      = "disconnect"
	TypeDisconnectPair  = "disconnect/pair"
	TypeGraphSnapshot   = "graph/snapshot"
)

// Request is sent by clients. Source and Sink are endpoint names and are
// only used by the connect and disconnect types.
type Request struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Source string `json:"source,omitempty"`
	Sink   string `json:"sink,omitempty"`
}

// Response answers exactly one Request with the same ID
type Response struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	// Kind is the hound error kind, e.g. "not_found"
	Kind string `json:"kind,omitempty"`

	Server      *ServerInfo            `json:"server,omitempty"`
	Sources     []string               `json:"sources,omitempty"`
	Sinks       []string               `json:"sinks,omitempty"`
	Connections []hound.ConnectionInfo `json:"connections,omitempty"`
	Devices     []hound.DeviceInfo     `json:"devices,omitempty"`
	Graph       *hound.Graph           `json:"graph,omitempty"`
	Connection  *hound.ConnectionInfo  `json:"connection,omitempty"`
	Removed     int                    `json:"removed,omitempty"`
}

// ServerInfo identifies the daemon
type ServerInfo struct {
	ServerID        string `json:"server_id"`
	Name            string `json:"name"`
	Version         int    `json:"version"`
	ProductName     string `json:"product_name"`
	Manufacturer    string `json:"manufacturer"`
	SoftwareVersion string `json:"software_version"`
}

// ErrorResponse builds a failed response for req
func ErrorResponse(req Request, err error) Response {
	resp := Response{ID: req.ID, Type: req.Type, Error: err.Error()}
	if kind := hound.KindOf(err); kind != hound.KindUnknown {
		resp.Kind = kind.String()
	}
	return resp
}
