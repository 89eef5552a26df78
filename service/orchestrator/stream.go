package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/scriptgate/scriptgate/model"
)

// Config tunes status streaming.
type Config struct {
	// PollInterval is the initial delay between status probes.
	PollInterval time.Duration
	// MaxPollInterval caps the exponential backoff.
	MaxPollInterval time.Duration
	// BackoffMultiplier grows the interval after each unchanged probe.
	BackoffMultiplier float64
	// StreamMaxDuration bounds a single stream; on expiry the stream emits
	// one explanatory message and ends.
	StreamMaxDuration time.Duration
}

// DefaultConfig returns the standard streaming configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval:      2 * time.Second,
		MaxPollInterval:   15 * time.Second,
		BackoffMultiplier: 1.5,
		StreamMaxDuration: 10 * time.Minute,
	}
}

// StreamOption overrides the streaming configuration for one call.
type StreamOption func(*Config)

// WithPollInterval overrides the base poll interval for one stream.
func WithPollInterval(interval time.Duration) StreamOption {
	return func(c *Config) { c.PollInterval = interval }
}

// WithMaxDuration bounds the lifetime of one stream.
func WithMaxDuration(duration time.Duration) StreamOption {
	return func(c *Config) { c.StreamMaxDuration = duration }
}

// StreamStatus follows a package until it reaches a terminal status, the
// stream duration limit expires or ctx is cancelled. Messages are emitted
// only when the observed status changes; the terminal message carries the
// formatted execution result. The returned channel is closed when the
// stream ends.
func (s *Service) StreamStatus(ctx context.Context, packageID string, options ...StreamOption) (<-chan *Message, error) {
	pkg, err := s.dispatcher.Status(ctx, packageID)
	if err != nil {
		return nil, err
	}
	if pkg == nil {
		return nil, fmt.Errorf("orchestrator: unknown package %s", packageID)
	}
	config := s.config
	for _, option := range options {
		option(&config)
	}
	out := make(chan *Message, 1)
	go s.streamLoop(ctx, config, packageID, pkg, out)
	return out, nil
}

func (s *Service) streamLoop(ctx context.Context, config Config, packageID string, pkg *model.ScriptPackage, out chan<- *Message) {
	defer close(out)

	if !s.emit(ctx, out, s.snapshot(pkg)) {
		return
	}
	if pkg.Status.IsTerminal() {
		return
	}

	deadline := time.After(config.StreamMaxDuration)
	interval := config.PollInterval
	lastStatus := pkg.Status
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			s.emit(ctx, out, textMessage(fmt.Sprintf(
				"Stopped watching script execution %s after %s; it is still %s. Check its status again later.",
				packageID, config.StreamMaxDuration, lastStatus)))
			return
		case <-timer.C:
		}

		current, err := s.dispatcher.Status(ctx, packageID)
		if err != nil || current == nil {
			// Transient lookup failure, retry on the backed-off interval.
			interval = config.backoff(interval)
			timer.Reset(interval)
			continue
		}
		if current.Status == lastStatus {
			interval = config.backoff(interval)
			timer.Reset(interval)
			continue
		}
		lastStatus = current.Status
		s.refreshCache(current)
		if !s.emit(ctx, out, s.snapshot(current)) {
			return
		}
		if current.Status.IsTerminal() {
			return
		}
		interval = config.PollInterval
		timer.Reset(interval)
	}
}

func (s *Service) snapshot(pkg *model.ScriptPackage) *Message {
	if pkg.Status.IsTerminal() {
		return formatResult(pkg)
	}
	return formatStatus(pkg)
}

func (c Config) backoff(interval time.Duration) time.Duration {
	next := time.Duration(float64(interval) * c.BackoffMultiplier)
	if next > c.MaxPollInterval {
		next = c.MaxPollInterval
	}
	return next
}

func (s *Service) emit(ctx context.Context, out chan<- *Message, message *Message) bool {
	select {
	case out <- message:
		return true
	case <-ctx.Done():
		return false
	}
}
