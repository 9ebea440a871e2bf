package notify

import (
	"runtime"
	"strings"

	"github.com/msageha/dropzone/internal/events"
	"github.com/msageha/dropzone/internal/log"
)

// Sender shows one notification.
type Sender interface {
	Send(title, message string) error
}

// Desktop returns the sender of the current platform, or nil when there is
// none.
func Desktop() Sender {
	switch runtime.GOOS {
	case "darwin":
		return OSAScript{Sound: "default"}
	case "linux", "freebsd", "openbsd":
		return NotifySend{}
	default:
		return nil
	}
}

var variantRank = map[events.Variant]int{
	events.VariantInfo:    0,
	events.VariantSuccess: 1,
	events.VariantWarning: 2,
	events.VariantDanger:  3,
}

// SinkConfig is the configuration of a Sink.
type SinkConfig struct {
	Sender Sender
	// MinVariant filters out events below this severity. Success ranks
	// above info.
	MinVariant events.Variant
	Logger     log.Logger
}

// Sink forwards bus events to a Sender.
type Sink struct {
	sender Sender
	min    int
	logger log.Logger
}

// NewSink returns a Sink. A nil Sender discards everything.
func NewSink(cfg SinkConfig) *Sink {
	if cfg.Logger == nil {
		cfg.Logger = log.Noop
	}
	return &Sink{
		sender: cfg.Sender,
		min:    variantRank[cfg.MinVariant],
		logger: cfg.Logger.WithValues(log.Kv{"svc": "notify.Sink"}),
	}
}

// Attach subscribes the sink to types on bus and returns the unsubscribe
// function.
func (s *Sink) Attach(bus *events.Bus, types ...events.EventType) func() {
	unsubs := make([]func(), 0, len(types))
	for _, t := range types {
		unsubs = append(unsubs, bus.Subscribe(t, s.Handle))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Handle sends event when it is severe enough.
func (s *Sink) Handle(event events.Event) {
	if s.sender == nil || variantRank[event.Variant] < s.min {
		return
	}
	message := event.Message
	if message == "" {
		message = firstLine(event.Details)
	}
	if err := s.sender.Send(event.Title, message); err != nil {
		s.logger.Warningf("desktop notification: %v", err)
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
