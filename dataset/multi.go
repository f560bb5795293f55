package dataset

import (
	"context"
	"errors"

	civicscreen "github.com/anatolykoptev/go-civicscreen"
	"github.com/google/uuid"
)

// Multi fans a record out to several sinks. Every sink is tried; the
// returned error joins the individual failures.
type Multi []civicscreen.Sink

// Append assigns one ID shared by all sinks, then appends to each.
func (m Multi) Append(ctx context.Context, rec civicscreen.Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	var errs []error
	for _, s := range m {
		if err := s.Append(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
