// ABOUTME: Device abstraction for drivers that expose endpoints to the registry
// ABOUTME: A device offers at most one source and one sink
package hound

// Device is implemented by drivers. Source and Sink return nil when the
// device does not offer that direction.
type Device interface {
	ID() string
	Name() string
	Source() *Source
	Sink() *Sink
}

// DeviceInfo describes a registered device
type DeviceInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Source string `json:"source,omitempty"`
	Sink   string `json:"sink,omitempty"`
}

func describeDevice(d Device) DeviceInfo {
	info := DeviceInfo{ID: d.ID(), Name: d.Name()}
	if src := d.Source(); src != nil {
		info.Source = src.Name()
	}
	if sink := d.Sink(); sink != nil {
		info.Sink = sink.Name()
	}
	return info
}
