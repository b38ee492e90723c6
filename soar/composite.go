package soar

import (
	"context"
	"errors"
)

// MultiContainment fans Block out to every member. All members are called
// even when one fails; the failures are joined.
type MultiContainment []Containment

// Block implements Containment
func (m MultiContainment) Block(ctx context.Context, ip, reason string) error {
	var errs []error
	for _, c := range m {
		if err := c.Block(ctx, ip, reason); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MultiOrchestrator fans Trigger out to every member
type MultiOrchestrator []Orchestrator

// Trigger implements Orchestrator
func (m MultiOrchestrator) Trigger(ctx context.Context, alertType, ip, details string) error {
	var errs []error
	for _, o := range m {
		if err := o.Trigger(ctx, alertType, ip, details); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
