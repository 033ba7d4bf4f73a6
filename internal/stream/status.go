package stream

import "fmt"

// Status is the connection state of a change channel.
type Status int

const (
	StatusConnecting Status = iota
	StatusOpen
	StatusError
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusOpen:
		return "open"
	case StatusError:
		return "error"
	case StatusClosed:
		return "closed"
	}
	return "unknown"
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	for _, v := range []Status{StatusConnecting, StatusOpen, StatusError, StatusClosed} {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown stream status %q", b)
}
