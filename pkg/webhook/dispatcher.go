package webhook

import (
	"context"

	"github.com/openhfr/facility-registry/pkg/apierr"
)

// Dispatcher broadcasts events to the active systems of a store. It satisfies
// the workflow's notifier.
type Dispatcher struct {
	broadcaster *Broadcaster
	systems     ActiveSystemLister
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(b *Broadcaster, systems ActiveSystemLister) *Dispatcher {
	return &Dispatcher{broadcaster: b, systems: systems}
}

// Notify broadcasts event. It reports a transient delivery error when at
// least one system did not accept it.
func (d *Dispatcher) Notify(ctx context.Context, event string, payload any) error {
	summary, err := d.broadcaster.BroadcastActive(ctx, d.systems, event, payload)
	if err != nil {
		return err
	}
	if summary.FailedCount > 0 {
		return apierr.New(apierr.KindTransientDelivery, apierr.CodeDeliveryFailed,
			"%s delivered to %d of %d systems", event, summary.SuccessCount, summary.SuccessCount+summary.FailedCount)
	}
	return nil
}
