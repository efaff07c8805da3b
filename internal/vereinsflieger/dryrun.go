package vereinsflieger

import (
	"context"
	"fmt"
	"sync"

	"github.com/yegors/spotlog/pkg/logger"
)

type reader interface {
	Authenticate(ctx context.Context) (*Session, error)
	GetFlight(ctx context.Context, s *Session, id string) (*FlightRecord, error)
	ListFlights(ctx context.Context, s *Session, date string) ([]FlightRecord, error)
}

// DryRun reads from the logbook but only logs writes. Created flights are
// kept in memory so a later landing in the same process can find them.
type DryRun struct {
	inner  reader
	logger *logger.Logger

	mu      sync.Mutex
	nextID  int
	created map[string]*FlightRecord
}

// NewDryRun wraps a logbook reader
func NewDryRun(inner reader, log *logger.Logger) *DryRun {
	return &DryRun{
		inner:   inner,
		logger:  log.Named("vf-dry-run"),
		created: make(map[string]*FlightRecord),
	}
}

func (d *DryRun) Authenticate(ctx context.Context) (*Session, error) {
	return d.inner.Authenticate(ctx)
}

func (d *DryRun) CreateFlight(_ context.Context, _ *Session, draft FlightDraft) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	id := fmt.Sprintf("dry-run-%d", d.nextID)
	d.created[id] = &FlightRecord{
		ID:                id,
		Date:              draft.Departure.Format("2006-01-02"),
		PilotName:         draft.PilotName,
		DepartureTime:     draft.Departure.Format("15:04:05"),
		ArrivalTime:       "00:00:00",
		DepartureLocation: draft.DepartureLocation,
		Callsign:          draft.Callsign,
		StartType:         draft.StartType,
		TowCallsign:       draft.TowCallsign,
		FlightTypeID:      draft.FlightTypeID,
		ChargeMode:        draft.ChargeMode,
	}

	d.logger.Info("Would create flight",
		logger.String("flid", id),
		logger.String("pilot", draft.PilotName),
		logger.String("departure", draft.Departure.Format(TimeLayout)),
		logger.String("location", draft.DepartureLocation))
	return id, nil
}

func (d *DryRun) UpdateFlight(_ context.Context, _ *Session, id string, update FlightUpdate) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if rec, ok := d.created[id]; ok {
		rec.ArrivalTime = update.Arrival.Format("15:04:05")
		rec.ArrivalLocation = update.ArrivalLocation
	}

	d.logger.Info("Would update flight",
		logger.String("flid", id),
		logger.String("departure", update.DepartureTime),
		logger.String("arrival", update.Arrival.Format(TimeLayout)),
		logger.String("location", update.ArrivalLocation))
	return nil
}

func (d *DryRun) GetFlight(ctx context.Context, s *Session, id string) (*FlightRecord, error) {
	d.mu.Lock()
	if rec, ok := d.created[id]; ok {
		cp := *rec
		d.mu.Unlock()
		return &cp, nil
	}
	d.mu.Unlock()
	return d.inner.GetFlight(ctx, s, id)
}

func (d *DryRun) ListFlights(ctx context.Context, s *Session, date string) ([]FlightRecord, error) {
	records, err := d.inner.ListFlights(ctx, s, date)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for i := 1; i <= d.nextID; i++ {
		rec := d.created[fmt.Sprintf("dry-run-%d", i)]
		if rec != nil && rec.Date == date {
			records = append(records, *rec)
		}
	}
	return records, nil
}
