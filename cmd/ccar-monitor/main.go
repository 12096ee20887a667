// ccar-monitor polls the connected-car cloud and prints vehicle state as JSON lines.
//
// The poll cadence adapts to charging: while the vehicle charges, state is fetched every few
// minutes; otherwise every few hours. The charging signal comes from the vehicle's own
// telemetry (the charging_status field of each snapshot), so plugging in is noticed on the
// next scheduled poll and tightens the cadence from there.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/vinfast-community/ccar-command/internal/log"
	"github.com/vinfast-community/ccar-command/pkg/account"
	"github.com/vinfast-community/ccar-command/pkg/cli"
	"github.com/vinfast-community/ccar-command/pkg/poll"
)

const chargerEntity = "vehicle.charging_status"

func writeErr(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format, a...)
	fmt.Fprintf(os.Stderr, "\n")
}

// tickerScheduler satisfies poll.Scheduler with a resettable sleep. Wait returns when the
// current interval elapses, a refresh is requested, or the context ends.
type tickerScheduler struct {
	mu       sync.Mutex
	interval time.Duration
	changed  chan struct{}
	kick     chan struct{}
}

func newTickerScheduler(interval time.Duration) *tickerScheduler {
	return &tickerScheduler{
		interval: interval,
		changed:  make(chan struct{}, 1),
		kick:     make(chan struct{}, 1),
	}
}

func (t *tickerScheduler) SetInterval(interval time.Duration) {
	t.mu.Lock()
	t.interval = interval
	t.mu.Unlock()
	select {
	case t.changed <- struct{}{}:
	default:
	}
}

func (t *tickerScheduler) RequestRefresh() {
	select {
	case t.kick <- struct{}{}:
	default:
	}
}

func (t *tickerScheduler) Wait(ctx context.Context) error {
	for {
		t.mu.Lock()
		interval := t.interval
		t.mu.Unlock()
		timer := time.NewTimer(interval)
		select {
		case <-timer.C:
			return nil
		case <-t.kick:
			timer.Stop()
			return nil
		case <-t.changed:
			// Interval changed mid-sleep; restart the wait with the new value.
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// telemetrySource satisfies poll.StateSource from snapshot values observed by the poll loop
// itself.
type telemetrySource struct {
	mu    sync.Mutex
	state map[string]string
	subs  map[int]func(oldState, newState string)
	next  int
}

func newTelemetrySource() *telemetrySource {
	return &telemetrySource{
		state: make(map[string]string),
		subs:  make(map[int]func(oldState, newState string)),
	}
}

func (s *telemetrySource) Current(entity string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.state[entity]
	return value, ok
}

func (s *telemetrySource) Subscribe(entity string, fn func(oldState, newState string)) (func(), error) {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}, nil
}

// Observe records a new charger state and notifies subscribers on change.
func (s *telemetrySource) Observe(entity, newState string) {
	s.mu.Lock()
	oldState, seen := s.state[entity]
	s.state[entity] = newState
	var fns []func(string, string)
	if !seen || oldState != newState {
		for _, fn := range s.subs {
			fns = append(fns, fn)
		}
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(oldState, newState)
	}
}

func login(ctx context.Context, config *cli.Config, session *account.Session) error {
	if token, err := config.LoadRefreshTokenFromKeyring(); err == nil && token != "" {
		session.UseRefreshToken(token)
		if session.Refresh(ctx) {
			return nil
		}
		writeErr("Stored refresh token rejected; falling back to password login")
	}
	if config.Email == "" {
		return errors.New("no credentials: set -email or " + cli.EnvEmail)
	}
	password, err := config.AccountPassword()
	if err != nil {
		return err
	}
	if err := session.Authenticate(ctx, config.Email, password); err != nil {
		return err
	}
	if token := session.RefreshToken(); token != "" {
		if err := config.SaveRefreshTokenToKeyring(token); err != nil {
			writeErr("Warning: could not save refresh token: %s", err)
		}
	}
	return nil
}

func monitor(ctx context.Context, session *account.Session, sched *tickerScheduler, source *telemetrySource) error {
	encoder := json.NewEncoder(os.Stdout)
	for {
		// Refresh proactively so a long idle interval does not start the cycle with a dead
		// token and burn the in-flight retry on it.
		if session.TokenExpiresWithin(5 * time.Minute) {
			session.Refresh(ctx)
		}

		// GetAllData issues several sequential requests; give the batch a few read budgets.
		fetchCtx, cancel := context.WithTimeout(ctx, 4*account.ReadTimeout)
		data := session.GetAllData(fetchCtx)
		cancel()
		for _, err := range data.Errors {
			log.Warning("Partial fetch: %s", err)
		}
		if err := encoder.Encode(data); err != nil {
			return err
		}

		if value, ok := data.Telemetry["charging_status"]; ok {
			source.Observe(chargerEntity, fmt.Sprint(value))
		}

		if err := sched.Wait(ctx); err != nil {
			return err
		}
	}
}

func main() {
	status := 1
	defer func() {
		os.Exit(status)
	}()

	var (
		shortInterval time.Duration
		longInterval  time.Duration
		chargingState string
	)
	config := cli.NewConfig()
	flag.DurationVar(&shortInterval, "short-interval", poll.DefaultShortInterval, "Poll `interval` while charging")
	flag.DurationVar(&longInterval, "long-interval", poll.DefaultLongInterval, "Poll `interval` while idle")
	flag.StringVar(&chargingState, "charging-state", "1", "Telemetry charging_status `value` that means the vehicle is charging")
	config.RegisterCommandLineFlags()
	flag.Parse()
	config.ReadFromEnvironment()
	config.ApplyLogLevel()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := config.NewSession()
	loginCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err := login(loginCtx, config, session)
	cancel()
	if err != nil {
		writeErr("Error: %s", err)
		return
	}

	sched := newTickerScheduler(longInterval)
	source := newTelemetrySource()
	controller := poll.NewController(poll.Config{
		Entity:        chargerEntity,
		ChargingState: chargingState,
		ShortInterval: shortInterval,
		LongInterval:  longInterval,
	}, sched, source)
	if err := controller.Start(); err != nil {
		writeErr("Error: %s", err)
		return
	}
	defer controller.Stop()

	if err := monitor(ctx, session, sched, source); err != nil && !errors.Is(err, context.Canceled) {
		writeErr("Error: %s", err)
		return
	}
	status = 0
}
