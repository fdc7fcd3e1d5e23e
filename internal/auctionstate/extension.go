package auctionstate

import "time"

// Default anti-sniping parameters
const (
	DefaultExtensionWindow = 60 * time.Second
	DefaultExtension       = 2 * time.Minute
)

// ExtensionPolicy pushes the end of an auction back when a bid lands in
// the final Window before it closes
type ExtensionPolicy struct {
	Window    time.Duration
	Extension time.Duration
}

// DefaultExtensionPolicy returns a 60s window with a 2m extension
func DefaultExtensionPolicy() ExtensionPolicy {
	return ExtensionPolicy{Window: DefaultExtensionWindow, Extension: DefaultExtension}
}

// EndTimeAfterBid returns the end time an auction should have once a bid
// accepted at acceptedAt commits. A bid at or after end-Window moves the
// end to end+Extension; any earlier bid leaves it unchanged.
func (p ExtensionPolicy) EndTimeAfterBid(end, acceptedAt time.Time) time.Time {
	if p.Extension <= 0 || p.Window <= 0 {
		return end
	}
	if acceptedAt.Before(end.Add(-p.Window)) {
		return end
	}
	return end.Add(p.Extension)
}
