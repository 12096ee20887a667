// Package poll adapts the polling cadence to an externally observed charging signal.
//
// The cloud rate-limits aggressively and the vehicle reports little while parked, so the
// default cadence is hours-scale. When a charger (typically an OCPP integration) reports the
// configured "charging" state, polling tightens to minutes so charge progress stays current,
// and the false→true transition triggers one immediate out-of-band refresh.
package poll

import (
	"sync"
	"time"

	"github.com/vinfast-community/ccar-command/internal/log"
)

const (
	// DefaultLongInterval is the idle cadence.
	DefaultLongInterval = 4 * time.Hour
	// DefaultShortInterval is the cadence while charging.
	DefaultShortInterval = 5 * time.Minute
)

// Config names the external charger entity to watch and the state string that means
// "charging". Zero intervals fall back to the defaults.
type Config struct {
	Entity        string
	ChargingState string
	ShortInterval time.Duration
	LongInterval  time.Duration
}

func (c Config) withDefaults() Config {
	if c.ShortInterval == 0 {
		c.ShortInterval = DefaultShortInterval
	}
	if c.LongInterval == 0 {
		c.LongInterval = DefaultLongInterval
	}
	return c
}

// State is the controller's current interval and last-observed charging flag.
type State struct {
	Interval time.Duration
	Charging bool
}

// Transition computes the next poll state from an observed charger state string. The returned
// bool requests an immediate out-of-band refresh, true only on the false→true charging edge.
// Pure function; the Controller binds it to a concrete scheduler and subscription.
func Transition(prev State, observed string, cfg Config) (State, bool) {
	cfg = cfg.withDefaults()
	charging := observed == cfg.ChargingState
	next := State{Charging: charging, Interval: cfg.LongInterval}
	if charging {
		next.Interval = cfg.ShortInterval
	}
	return next, charging && !prev.Charging
}

// Scheduler is the host's periodic-timer primitive: the controller only sets the interval and
// requests out-of-band runs, it does not implement the timer.
type Scheduler interface {
	SetInterval(time.Duration)
	RequestRefresh()
}

// StateSource delivers the charger entity's state: a one-shot read at setup and a subscription
// for changes. Subscribe returns an unsubscribe function; notifications may arrive
// concurrently with an in-progress poll.
type StateSource interface {
	Current(entity string) (string, bool)
	Subscribe(entity string, fn func(oldState, newState string)) (func(), error)
}

// Controller applies Transition to a live scheduler and state source.
type Controller struct {
	cfg   Config
	sched Scheduler
	src   StateSource

	mu    sync.Mutex
	state State
	unsub func()
}

// NewController returns an unstarted Controller.
func NewController(cfg Config, sched Scheduler, src StateSource) *Controller {
	cfg = cfg.withDefaults()
	return &Controller{
		cfg:   cfg,
		sched: sched,
		src:   src,
		state: State{Interval: cfg.LongInterval},
	}
}

// Start reads the charger's current state once, applies the matching interval, and subscribes
// for changes. The initial read never triggers a refresh: only a later false→true edge does.
// With no entity configured, Start is a no-op and the long interval stays in effect.
func (c *Controller) Start() error {
	if c.cfg.Entity == "" {
		log.Debug("No charger entity configured, skipping charger listener")
		return nil
	}

	if observed, ok := c.src.Current(c.cfg.Entity); ok {
		charging := observed == c.cfg.ChargingState
		interval := c.cfg.LongInterval
		if charging {
			interval = c.cfg.ShortInterval
		}
		c.mu.Lock()
		c.state = State{Charging: charging, Interval: interval}
		c.mu.Unlock()
		c.sched.SetInterval(interval)
		log.Debug("Initial charger state: %s (charging=%t)", observed, charging)
	}

	unsub, err := c.src.Subscribe(c.cfg.Entity, c.HandleChange)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.unsub = unsub
	c.mu.Unlock()
	log.Debug("Listening for charger state changes on %s", c.cfg.Entity)
	return nil
}

// HandleChange processes one state-change notification. Safe to call concurrently with an
// in-progress poll: the interval update only affects the next scheduling decision.
func (c *Controller) HandleChange(oldState, newState string) {
	c.mu.Lock()
	next, refresh := Transition(c.state, newState, c.cfg)
	changed := next.Charging != c.state.Charging
	c.state = next
	c.mu.Unlock()

	if !changed {
		return
	}
	log.Debug("Charger state changed: %s -> %s (charging=%t)", oldState, newState, next.Charging)
	c.sched.SetInterval(next.Interval)
	if refresh {
		c.sched.RequestRefresh()
	}
}

// CurrentState returns the controller's interval and charging flag.
func (c *Controller) CurrentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stop cancels the charger subscription. Idempotent, and safe to call even if Start never
// completed.
func (c *Controller) Stop() {
	c.mu.Lock()
	unsub := c.unsub
	c.unsub = nil
	c.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}
