package services

import (
	"context"
	"time"

	"github.com/home-express/finance-core/internal/model"
)

type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Notifier receives events about committed changes. Implementations must not block
// and must swallow their own failures.
type Notifier interface {
	Notify(ctx context.Context, e model.Event)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, model.Event) {}

type outboxKey struct{}

type outbox struct {
	events []model.Event
}

// unitOfWork runs fn in one transaction and hands the events collected during
// it to the notifier once the outermost call has committed.
type unitOfWork struct {
	tx       Transactor
	notifier Notifier
}

func newUnitOfWork(tx Transactor, notifier Notifier) unitOfWork {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return unitOfWork{tx: tx, notifier: notifier}
}

func (u unitOfWork) run(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(outboxKey{}).(*outbox); ok {
		return u.tx.WithinTransaction(ctx, fn)
	}

	ob := &outbox{}
	if err := u.tx.WithinTransaction(context.WithValue(ctx, outboxKey{}, ob), fn); err != nil {
		return err
	}
	for _, e := range ob.events {
		u.notifier.Notify(ctx, e)
	}
	return nil
}

// emit queues e until the enclosing unit of work commits. Outside one it is dropped.
func emit(ctx context.Context, e model.Event) {
	ob, ok := ctx.Value(outboxKey{}).(*outbox)
	if !ok {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	ob.events = append(ob.events, e)
}
