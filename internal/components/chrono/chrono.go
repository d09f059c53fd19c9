package chrono

import "time"

// API is the clock used by anything that timestamps what it records.
//
// note: fault injection point
type API interface {
	Now() time.Time
	Location() *time.Location
}

// PortalLocation is the timezone the KRA portal operates in.
const PortalLocation = "Africa/Nairobi"

type StandardImpl struct {
	location *time.Location
}

func NewStandardImpl(name string) (StandardImpl, error) {
	location, err := time.LoadLocation(name)
	if err != nil {
		return StandardImpl{}, err
	}
	return StandardImpl{location: location}, nil
}

func (s StandardImpl) Now() time.Time {
	return time.Now().In(s.location)
}

func (s StandardImpl) Location() *time.Location {
	return s.location
}

// FixedImpl always returns the same instant, it is meant for tests.
type FixedImpl struct {
	Instant time.Time
}

func (f FixedImpl) Now() time.Time {
	return f.Instant
}

func (f FixedImpl) Location() *time.Location {
	return f.Instant.Location()
}
