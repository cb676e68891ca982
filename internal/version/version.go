// ABOUTME: Version information for hound binaries
// ABOUTME: Reported by the control server, mDNS TXT records and -version flags
package version

const (
	// Version is the release of this build
	Version = "0.3.0"
	// Product is the user-facing name
	Product = "Hound Sound Server"
	// Manufacturer appears in discovery records
	Manufacturer = "Resonate Protocol"
)
