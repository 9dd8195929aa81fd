package scheduler

import (
	"errors"
	"fmt"

	"github.com/rodrigorodrigues/kairos/internal/clock"
	"github.com/rodrigorodrigues/kairos/internal/eventbus"
	"github.com/rodrigorodrigues/kairos/internal/timespec"
	logx "github.com/rodrigorodrigues/kairos/pkg/logx"
)

// Config is the construction input of a timeline.
type Config struct {
	Times  map[string]timespec.Value `json:"times"`
	Frames []timespec.FrameSpec      `json:"frames"`
	// AutoStart defaults to true when nil.
	AutoStart *bool `json:"autoStart,omitempty"`
	// Timezone is an IANA name used for dates without a zone offset. Empty means UTC.
	Timezone string `json:"timezone,omitempty"`
}

func (c Config) autoStart() bool { return c.AutoStart == nil || *c.AutoStart }

// Generic relay channels.
const (
	ChannelBegan   = "timeFrameBegan"
	ChannelTicked  = "timeFrameTicked"
	ChannelEnded   = "timeFrameEnded"
	ChannelMuted   = "timeFrameMuted"
	ChannelUnmuted = "timeFrameUnmuted"
)

// ErrFrameNotFound is returned by lookups for a name no frame carries.
var ErrFrameNotFound = errors.New("frame not found")

// DuplicateNameError reports two frames sharing a non-empty name.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("duplicate frame name %q", e.Name)
}

// MissingParameterError reports a required lookup key that was empty.
type MissingParameterError struct {
	Param string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("missing parameter %q", e.Param)
}

// Option configures a Scheduler.
type Option func(*options)

type options struct {
	clk clock.Clock
	log logx.Logger
	bus *eventbus.Bus
}

func WithClock(c clock.Clock) Option { return func(o *options) { o.clk = c } }

func WithLogger(log logx.Logger) Option { return func(o *options) { o.log = log } }

// WithBus relays onto b. Subscribers registered on b before New see the
// events of frames that begin during construction.
func WithBus(b *eventbus.Bus) Option { return func(o *options) { o.bus = b } }
