// Package reconcile runs one reconciliation pass: it reads the day's tracker
// messages and turns takeoffs and landings into logbook flights.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/yegors/spotlog/internal/airports"
	"github.com/yegors/spotlog/internal/matcher"
	"github.com/yegors/spotlog/internal/notify"
	"github.com/yegors/spotlog/internal/spot"
	"github.com/yegors/spotlog/internal/state"
	"github.com/yegors/spotlog/internal/timeconv"
	"github.com/yegors/spotlog/internal/vereinsflieger"
	"github.com/yegors/spotlog/pkg/logger"
)

const defaultLockLease = 10 * time.Minute

// Feed delivers tracker messages, newest first
type Feed interface {
	FetchMessages(ctx context.Context, start, end time.Time) ([]spot.Message, error)
}

// Logbook is the remote flight log
type Logbook interface {
	matcher.Logbook
	CreateFlight(ctx context.Context, s *vereinsflieger.Session, draft vereinsflieger.FlightDraft) (string, error)
	UpdateFlight(ctx context.Context, s *vereinsflieger.Session, id string, update vereinsflieger.FlightUpdate) error
	GetFlight(ctx context.Context, s *vereinsflieger.Session, id string) (*vereinsflieger.FlightRecord, error)
}

// Resolver maps coordinates and names to known airports
type Resolver interface {
	Resolve(lat, lon float64) (airports.Airport, float64, bool)
	Lookup(name string) (airports.Airport, bool)
}

// Config holds the per-pass settings
type Config struct {
	PilotName      string // "Firstname Surname"
	PilotID        string
	Callsign       string
	StartType      string
	DefaultAirport string
	Recipient      string // notification recipient key
	NotifyProblems bool
	MatchTolerance time.Duration
	LockLease      time.Duration
	Retention      time.Duration // zero keeps known ids forever
	Day            time.Time     // UTC day to reconcile, zero means today
}

// Engine reconciles tracker messages with the logbook
type Engine struct {
	config         Config
	feed           Feed
	logbook        Logbook
	store          state.Store
	resolver       Resolver
	notifier       notify.Notifier
	matcher        *matcher.Matcher
	defaultAirport airports.Airport
	logger         *logger.Logger
	now            func() time.Time
}

// New creates an engine. The default airport must be known to the resolver.
func New(config Config, feed Feed, logbook Logbook, store state.Store, resolver Resolver, notifier notify.Notifier, log *logger.Logger) (*Engine, error) {
	if config.PilotName == "" {
		return nil, fmt.Errorf("%w: pilot name is required", ErrConfig)
	}
	def, ok := resolver.Lookup(config.DefaultAirport)
	if !ok {
		return nil, fmt.Errorf("%w: default airport %q is not in the airport list", ErrConfig, config.DefaultAirport)
	}
	if _, err := timeconv.LoadZone(def.TimeZone); err != nil {
		return nil, fmt.Errorf("%w: default airport %s: %w", ErrConfig, def.Name, err)
	}
	if config.LockLease <= 0 {
		config.LockLease = defaultLockLease
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}

	return &Engine{
		config:         config,
		feed:           feed,
		logbook:        logbook,
		store:          store,
		resolver:       resolver,
		notifier:       notifier,
		matcher:        matcher.New(logbook, config.MatchTolerance, log),
		defaultAirport: def,
		logger:         log.Named("reconcile"),
		now:            time.Now,
	}, nil
}

// Run executes one pass. The returned error is non-nil only when the pass was
// aborted; per-message inconsistencies are counted in the summary instead.
func (e *Engine) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{PassID: uuid.NewString()}
	log := e.logger.With(logger.String("pass", summary.PassID))

	now := e.now().UTC()
	day := e.config.Day
	if day.IsZero() {
		day = now
	}
	start, end := spot.DayWindow(day)

	// Ids of a day past the retention window may already be pruned, and
	// replaying them would log its flights a second time
	if e.config.Retention > 0 && end.Before(now.Add(-e.config.Retention)) {
		return summary, fmt.Errorf("%w: day %s is older than the %s retention window",
			ErrConfig, start.Format(timeconv.DateLayout), e.config.Retention)
	}

	if err := e.store.Acquire(ctx, summary.PassID, e.config.LockLease); err != nil {
		if errors.Is(err, state.ErrLocked) {
			return summary, err
		}
		return summary, fmt.Errorf("%w: failed to acquire pass lease: %w", ErrTransientIO, err)
	}
	defer func() {
		if err := e.store.Release(context.WithoutCancel(ctx), summary.PassID); err != nil {
			log.Warn("Failed to release pass lease", logger.Error(err))
		}
	}()

	if e.config.Retention > 0 {
		pruned, err := e.store.Prune(ctx, now.Add(-e.config.Retention))
		if err != nil {
			return summary, fmt.Errorf("%w: failed to prune known messages: %w", ErrTransientIO, err)
		}
		summary.Pruned = pruned
	}

	messages, err := e.feed.FetchMessages(ctx, start, end)
	if err != nil {
		if errors.Is(err, spot.ErrTransient) {
			return summary, classify(err, "failed to fetch feed")
		}
		return summary, fmt.Errorf("failed to fetch feed: %w", err)
	}
	summary.Fetched = len(messages)

	log.Info("Starting reconciliation pass",
		logger.String("day", start.Format(timeconv.DateLayout)),
		logger.Int("messages", len(messages)))

	for _, msg := range chronological(messages) {
		if err := e.process(ctx, log, msg, summary); err != nil {
			log.Error("Pass aborted",
				logger.String("message_id", msg.ID),
				logger.Error(err))
			return summary, err
		}
	}

	log.Info("Reconciliation pass finished", summary.fields()...)
	return summary, nil
}

// chronological returns the messages oldest first. The feed delivers newest
// first, so the slice is reversed before the stable sort to keep feed order
// for equal timestamps.
func chronological(messages []spot.Message) []spot.Message {
	ordered := slices.Clone(messages)
	slices.Reverse(ordered)
	slices.SortStableFunc(ordered, func(a, b spot.Message) int {
		return a.TimestampUTC.Compare(b.TimestampUTC)
	})
	return ordered
}

func (e *Engine) process(ctx context.Context, log *logger.Logger, msg spot.Message, summary *Summary) error {
	log = log.With(
		logger.String("message_id", msg.ID),
		logger.String("type", msg.Type.String()),
		logger.Time("timestamp", msg.TimestampUTC))

	known, err := e.store.IsKnown(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("%w: failed to read known messages: %w", ErrTransientIO, err)
	}
	if known {
		summary.Skipped++
		log.Debug("Message already handled")
		return nil
	}

	switch msg.Type {
	case spot.TypeTakeoff:
		err = e.handleTakeoff(ctx, log, msg, summary)
	case spot.TypeLanding:
		err = e.handleLanding(ctx, log, msg, summary)
	default:
		summary.Ignored++
		log.Debug("Ignoring message", logger.String("raw_type", msg.RawType))
	}

	if aborts(err) {
		return err
	}
	if err != nil {
		summary.Inconsistencies++
		log.Warn("Message could not be reconciled", logger.Error(err))
		if e.config.NotifyProblems {
			e.send(ctx, summary, notify.KindProblem, fmt.Sprintf("%s message not logged: %v", msg.Type, err), msg.TimestampUTC)
		}
	}

	if err := e.store.MarkKnown(ctx, msg.ID, e.now().UTC()); err != nil {
		return fmt.Errorf("%w: failed to record message %s: %w", ErrTransientIO, msg.ID, err)
	}
	summary.Processed++
	return nil
}

func (e *Engine) handleTakeoff(ctx context.Context, log *logger.Logger, msg spot.Message, summary *Summary) error {
	airport := e.resolveAirport(log, msg)

	res := e.matcher.Match(ctx, e.config.PilotName, msg.TimestampUTC, airport.TimeZone)
	switch res.Outcome {
	case matcher.AuthError, matcher.QueryError:
		return classify(res.Err, "failed to look up open flights")
	case matcher.Found:
		// Already logged, only re-arm the pending takeoff
		if err := e.setPending(ctx, msg, airport); err != nil {
			return err
		}
		summary.Duplicates++
		log.Info("Takeoff already logged",
			logger.String("flid", res.FlightID),
			logger.String("airport", airport.Name))
		return nil
	}

	departure, err := timeconv.ToLocal(msg.TimestampUTC, airport.TimeZone)
	if err != nil {
		return inconsistency("airport %s: %v", airport.Name, err)
	}

	id, err := e.logbook.CreateFlight(ctx, res.Session, vereinsflieger.FlightDraft{
		Callsign:          e.config.Callsign,
		PilotName:         matcher.LogbookName(e.config.PilotName),
		PilotID:           e.config.PilotID,
		StartType:         e.config.StartType,
		Departure:         departure,
		DepartureLocation: airport.Name,
		TowCallsign:       airport.TowCallsign,
		FlightTypeID:      airport.FlightTypeID,
		ChargeMode:        airport.ChargeMode,
	})
	if err != nil {
		err = classify(err, "failed to create flight")
		if aborts(err) {
			return err
		}
		// An older pending takeoff must not pair with this takeoff's landing
		if cerr := e.store.ClearPending(ctx); cerr != nil {
			return fmt.Errorf("%w: failed to clear pending takeoff: %w", ErrTransientIO, cerr)
		}
		return err
	}

	if err := e.setPending(ctx, msg, airport); err != nil {
		return err
	}
	summary.Created++

	log.Info("Takeoff logged",
		logger.String("flid", id),
		logger.String("airport", airport.Name),
		logger.String("departure", departure.Format(vereinsflieger.TimeLayout)))

	e.send(ctx, summary, notify.KindTakeoff,
		fmt.Sprintf("Takeoff at %s %s logged, battery is %s", airport.Name, departure.Format("15:04"), msg.BatteryLevel),
		msg.TimestampUTC)
	return nil
}

func (e *Engine) handleLanding(ctx context.Context, log *logger.Logger, msg spot.Message, summary *Summary) error {
	arrivalAirport := e.resolveAirport(log, msg)

	pending, err := e.store.Pending(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to read pending takeoff: %w", ErrTransientIO, err)
	}

	err = e.closeFlight(ctx, log, msg, pending, arrivalAirport, summary)
	if aborts(err) {
		return err
	}

	// A landing always ends the pending session
	if cerr := e.store.ClearPending(ctx); cerr != nil {
		return fmt.Errorf("%w: failed to clear pending takeoff: %w", ErrTransientIO, cerr)
	}
	return err
}

func (e *Engine) closeFlight(ctx context.Context, log *logger.Logger, msg spot.Message, pending *state.PendingTakeoff, arrivalAirport airports.Airport, summary *Summary) error {
	if pending == nil {
		return inconsistency("no matching takeoff")
	}

	zone := pending.TimeZone
	if zone == "" {
		zone = e.defaultAirport.TimeZone
	}

	same, err := timeconv.SameLocalDate(pending.TakeoffUTC, msg.TimestampUTC, zone)
	if err != nil {
		return inconsistency("pending takeoff zone: %v", err)
	}
	if !same {
		return inconsistency("no matching takeoff: pending takeoff at %s is on another day",
			pending.TakeoffUTC.Format(time.RFC3339))
	}

	res := e.matcher.Match(ctx, e.config.PilotName, pending.TakeoffUTC, zone)
	switch res.Outcome {
	case matcher.AuthError, matcher.QueryError:
		return classify(res.Err, "failed to look up open flights")
	case matcher.NoFlightsThatDay:
		return inconsistency("no flights logged on %s", res.Date)
	case matcher.NoMatch:
		return inconsistency("no open flight for takeoff at %s (%d closed)",
			pending.TakeoffUTC.Format(time.RFC3339), res.Closed)
	}

	// Re-read the record so the stored departure is written back unchanged
	record, err := e.logbook.GetFlight(ctx, res.Session, res.FlightID)
	if err != nil {
		return classify(err, "failed to fetch flight "+res.FlightID)
	}
	if record.ArrivalSet() {
		return inconsistency("flight %s already has arrival %s", res.FlightID, record.ArrivalTime)
	}
	if vereinsflieger.IsUnsetTime(record.DepartureTime) {
		return inconsistency("flight %s has no departure time", res.FlightID)
	}
	if record.Date == "" {
		record.Date = res.Date
	}

	arrivalZone := arrivalAirport.TimeZone
	if arrivalZone == "" {
		arrivalZone = zone
	}
	arrival, err := timeconv.ToLocal(msg.TimestampUTC, arrivalZone)
	if err != nil {
		return inconsistency("airport %s: %v", arrivalAirport.Name, err)
	}

	err = e.logbook.UpdateFlight(ctx, res.Session, res.FlightID, vereinsflieger.FlightUpdate{
		DepartureTime:   record.DepartureDateTime(),
		Arrival:         arrival,
		ArrivalLocation: arrivalAirport.Name,
	})
	if err != nil {
		return classify(err, "failed to update flight "+res.FlightID)
	}
	summary.Updated++

	log.Info("Landing logged",
		logger.String("flid", res.FlightID),
		logger.String("airport", arrivalAirport.Name),
		logger.String("arrival", arrival.Format(vereinsflieger.TimeLayout)))

	e.send(ctx, summary, notify.KindLanding,
		fmt.Sprintf("Landing at %s %s logged, battery is %s", arrivalAirport.Name, arrival.Format("15:04"), msg.BatteryLevel),
		msg.TimestampUTC)
	return nil
}

// resolveAirport returns the nearest known airport, or the default one
func (e *Engine) resolveAirport(log *logger.Logger, msg spot.Message) airports.Airport {
	airport, distance, ok := e.resolver.Resolve(msg.Latitude, msg.Longitude)
	if !ok {
		log.Warn("Position not near a known airport, using default",
			logger.Float64("lat", msg.Latitude),
			logger.Float64("lon", msg.Longitude),
			logger.String("airport", e.defaultAirport.Name))
		return e.defaultAirport
	}
	log.Debug("Resolved airport",
		logger.String("airport", airport.Name),
		logger.Float64("distance_km", distance))
	return airport
}

func (e *Engine) setPending(ctx context.Context, msg spot.Message, airport airports.Airport) error {
	err := e.store.SetPending(ctx, state.PendingTakeoff{
		TakeoffUTC: msg.TimestampUTC,
		TimeZone:   airport.TimeZone,
		Airport:    airport.Name,
	})
	if err != nil {
		return fmt.Errorf("%w: failed to store pending takeoff: %w", ErrTransientIO, err)
	}
	return nil
}

func (e *Engine) send(ctx context.Context, summary *Summary, kind notify.Kind, message string, at time.Time) {
	e.notifier.Send(ctx, notify.Notification{
		Kind:      kind,
		Message:   message,
		Recipient: e.config.Recipient,
		At:        at,
	})
	summary.Notifications++
}
