// internal/notify/notify.go
//
// Notifiers: the side effect of a successful account submission.
//
// Context
//   The submission controller hands every completed submission to a
//   submission.Notifier.  This package provides the concrete ones:
//
//   •  Log    – structured "account opened" line (default).
//   •  Kafka  – publishes an AccountOpened event (kafka.go).
//   •  Multi  – fans out to several notifiers and joins their errors.
//
//   FromActions (actions.go) assembles the chain from a form definition's
//   `actions` list, so operators pick notifiers in YAML.
//
//   Notifiers never log personal fields (name, email, phone, address, date
//   of birth).  The reference, product, currency, and amount are enough to
//   trace a submission.
//
//------------------------------------------------------------------------------

package notify

import (
	"context"
	"errors"

	"github.com/yanizio/openaccount/internal/logger"
	"github.com/yanizio/openaccount/internal/submission"
)

// -----------------------------------------------------------------------------
// Log
// -----------------------------------------------------------------------------

// Log writes one structured line per submission through the logger carried
// by ctx (request-scoped when the submit came over HTTP).
type Log struct{}

// Notify implements submission.Notifier.
func (Log) Notify(ctx context.Context, r submission.Receipt) error {
	logger.FromContext(ctx).Infow("account opened",
		"reference", r.Reference,
		"submitted_at", r.SubmittedAt,
		"account_type", r.Application.AccountType,
		"currency", r.Application.Currency,
		"deposit", r.Application.InitialDeposit.StringFixed(2),
	)
	return nil
}

// -----------------------------------------------------------------------------
// Multi
// -----------------------------------------------------------------------------

// Multi runs every notifier in order.  A failure does not stop the rest;
// all errors are joined.
type Multi []submission.Notifier

// Notify implements submission.Notifier.
func (m Multi) Notify(ctx context.Context, r submission.Receipt) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
