package fieldsync

import "context"

// NetworkStatus is a snapshot of the device's connectivity.
type NetworkStatus struct {
	Connected         bool // a network link is up
	InternetReachable bool // the internet answers through that link
}

// Online reports whether both link and internet are available.
func (s NetworkStatus) Online() bool {
	return s.Connected && s.InternetReachable
}

// Network reports connectivity.
type Network interface {
	Status(ctx context.Context) NetworkStatus
}
