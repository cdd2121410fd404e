package isapi

import (
	"fmt"
	"time"
)

// Time layouts used on the wire, in file names and on the command line
const (
	ProtocolTimeLayout = "2006-01-02T15:04:05Z07:00"
	FilenameTimeLayout = "2006-01-02_15-04-05"
	InputTimeLayout    = "2006-01-02 15:04:05"
)

// TimeInterval is a span of recording time. Start and End are absolute
// instants whose location tells which representation they are in: UTC, or
// the device's local zone. LocalOffset is the device's local-minus-UTC
// offset and travels with every representation so local time can always be
// reconstructed.
type TimeInterval struct {
	Start       time.Time
	End         time.Time
	LocalOffset time.Duration
}

// NewLocalInterval interprets the wall clocks of start and end as device
// local time at the given offset
func NewLocalInterval(start, end time.Time, offset time.Duration) TimeInterval {
	zone := offsetZone(offset)
	return TimeInterval{
		Start:       reinterpret(start, zone),
		End:         reinterpret(end, zone),
		LocalOffset: offset,
	}
}

// ParseLocalInterval parses "2006-01-02 15:04:05" start and end texts as
// device local time
func ParseLocalInterval(startText, endText string, offset time.Duration) (TimeInterval, error) {
	zone := offsetZone(offset)
	start, err := time.ParseInLocation(InputTimeLayout, startText, zone)
	if err != nil {
		return TimeInterval{}, fmt.Errorf("invalid start time %q: %v", startText, err)
	}
	end, err := time.ParseInLocation(InputTimeLayout, endText, zone)
	if err != nil {
		return TimeInterval{}, fmt.Errorf("invalid end time %q: %v", endText, err)
	}
	return TimeInterval{Start: start, End: end, LocalOffset: offset}, nil
}

// ToUTC returns the interval with its bounds expressed in UTC, i.e. shifted
// by -LocalOffset on the wall clock
func (i TimeInterval) ToUTC() TimeInterval {
	return TimeInterval{Start: i.Start.UTC(), End: i.End.UTC(), LocalOffset: i.LocalOffset}
}

// ToLocalTime returns the interval with its bounds expressed in device local
// time, i.e. shifted by +LocalOffset from UTC
func (i TimeInterval) ToLocalTime() TimeInterval {
	zone := offsetZone(i.LocalOffset)
	return TimeInterval{Start: i.Start.In(zone), End: i.End.In(zone), LocalOffset: i.LocalOffset}
}

// WithStart returns a copy of the interval starting at start, kept in the
// representation of the receiver
func (i TimeInterval) WithStart(start time.Time) TimeInterval {
	i.Start = start.In(i.Start.Location())
	return i
}

// Duration is End minus Start
func (i TimeInterval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Equal reports whether both intervals cover the same instants, share the
// same offset and are in the same representation
func (i TimeInterval) Equal(other TimeInterval) bool {
	_, o1 := i.Start.Zone()
	_, o2 := other.Start.Zone()
	return i.Start.Equal(other.Start) && i.End.Equal(other.End) &&
		i.LocalOffset == other.LocalOffset && o1 == o2
}

// ToProtocolText renders start and end as the search API expects them,
// with an explicit offset suffix ("Z" for UTC)
func (i TimeInterval) ToProtocolText() (string, string) {
	return i.Start.Format(ProtocolTimeLayout), i.End.Format(ProtocolTimeLayout)
}

// ParseProtocolText is the inverse of ToProtocolText
func ParseProtocolText(startText, endText string, offset time.Duration) (TimeInterval, error) {
	start, err := time.Parse(ProtocolTimeLayout, startText)
	if err != nil {
		return TimeInterval{}, fmt.Errorf("invalid start time %q: %v", startText, err)
	}
	end, err := time.Parse(ProtocolTimeLayout, endText)
	if err != nil {
		return TimeInterval{}, fmt.Errorf("invalid end time %q: %v", endText, err)
	}
	return TimeInterval{Start: start, End: end, LocalOffset: offset}, nil
}

// ToFilenameText renders the local start time in a filesystem-safe form
func (i TimeInterval) ToFilenameText() string {
	return i.ToLocalTime().Start.Format(FilenameTimeLayout)
}

func (i TimeInterval) String() string {
	start, end := i.ToProtocolText()
	return fmt.Sprintf("%s - %s (offset %s)", start, end, i.LocalOffset)
}

func offsetZone(offset time.Duration) *time.Location {
	if offset == 0 {
		return time.UTC
	}
	return time.FixedZone("", int(offset/time.Second))
}

func reinterpret(t time.Time, zone *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), zone)
}
