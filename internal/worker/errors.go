package worker

import (
	"errors"
	"fmt"
)

// Tag is the six-member error taxonomy: TransportError, ParseError,
// ConfigureError, IoError, PluginError, DataError. Tag implements
// error so Wrap's fmt.Errorf("%w: ...", tag) lets errors.Is/errors.As
// recover the taxonomy from any error this package returns, without
// string matching.
type Tag string

const (
	TagTransport Tag = "TransportError"
	TagParse     Tag = "ParseError"
	TagConfigure Tag = "ConfigureError"
	TagIO        Tag = "IoError"
	TagPlugin    Tag = "PluginError"
	TagData      Tag = "DataError"
)

func (t Tag) Error() string  { return string(t) }
func (t Tag) String() string { return string(t) }

// Wrap attaches tag to err so errors.Is(result, tag) succeeds while
// err.Error() still carries the original diagnostic text.
func Wrap(tag Tag, err error) error {
	return fmt.Errorf("%w: %v", tag, err)
}

// TagOf recovers the taxonomy tag from an error built with Wrap,
// falling back to TagIO for any error this package didn't tag itself
// (there should be none on the paths that call TagOf, but an
// untagged error must still produce a valid status-channel payload).
func TagOf(err error) Tag {
	var tag Tag
	if errors.As(err, &tag) {
		return tag
	}
	return TagIO
}
