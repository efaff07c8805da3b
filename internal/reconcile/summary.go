package reconcile

import (
	"fmt"

	"github.com/yegors/spotlog/pkg/logger"
)

// Summary counts what a pass did
type Summary struct {
	PassID          string
	Fetched         int   // messages returned by the feed
	Skipped         int   // already known
	Ignored         int   // neither takeoff nor landing
	Processed       int   // newly marked known
	Created         int   // flights created
	Updated         int   // flights closed with a landing
	Duplicates      int   // takeoffs that were already logged
	Inconsistencies int   // messages that could not be reconciled
	Notifications   int   // notifications handed to the notifier
	Pruned          int64 // known ids dropped by retention
}

func (s *Summary) String() string {
	return fmt.Sprintf("fetched=%d skipped=%d ignored=%d processed=%d created=%d updated=%d duplicates=%d inconsistencies=%d notifications=%d",
		s.Fetched, s.Skipped, s.Ignored, s.Processed, s.Created, s.Updated, s.Duplicates, s.Inconsistencies, s.Notifications)
}

func (s *Summary) fields() []logger.Field {
	return []logger.Field{
		logger.Int("fetched", s.Fetched),
		logger.Int("skipped", s.Skipped),
		logger.Int("ignored", s.Ignored),
		logger.Int("processed", s.Processed),
		logger.Int("created", s.Created),
		logger.Int("updated", s.Updated),
		logger.Int("duplicates", s.Duplicates),
		logger.Int("inconsistencies", s.Inconsistencies),
		logger.Int("notifications", s.Notifications),
		logger.Int64("pruned", s.Pruned),
	}
}
