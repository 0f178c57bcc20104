package scheduler

import (
	"context"
	"time"

	"github.com/home-express/finance-core/internal/model"
	"github.com/home-express/finance-core/pkg/logger"
)

const (
	JobAutoSettle = "auto-settle"
	JobAutoSweep  = "auto-sweep"
	JobReconcile  = "wallet-reconcile"
)

type AutoSettler interface {
	AutoSettle(ctx context.Context, now time.Time) (*model.AutoSettleSummary, error)
}

type Sweeper interface {
	AutoSweep(ctx context.Context, minBalance int64) (*model.SweepSummary, error)
}

type Reconciler interface {
	ReconcileAll(ctx context.Context) ([]*model.ReconciliationReport, error)
}

func AutoSettleJob(svc AutoSettler, interval time.Duration) Job {
	return Job{
		Name:     JobAutoSettle,
		Interval: interval,
		Run: func(ctx context.Context, now time.Time) error {
			_, err := svc.AutoSettle(ctx, now)
			return err
		},
	}
}

func AutoSweepJob(svc Sweeper, interval time.Duration, minBalance int64) Job {
	return Job{
		Name:     JobAutoSweep,
		Interval: interval,
		Run: func(ctx context.Context, _ time.Time) error {
			_, err := svc.AutoSweep(ctx, minBalance)
			return err
		},
	}
}

// ReconcileJob only reports. Mismatches are logged for an operator.
func ReconcileJob(svc Reconciler, interval time.Duration) Job {
	return Job{
		Name:     JobReconcile,
		Interval: interval,
		Run: func(ctx context.Context, _ time.Time) error {
			reports, err := svc.ReconcileAll(ctx)
			if err != nil {
				return err
			}
			unhealthy := 0
			for _, r := range reports {
				if !r.Healthy() {
					unhealthy++
					logger.Error("wallet out of balance",
						"transport_id", r.TransportID, "stored_balance", r.StoredBalance,
						"ledger_balance", r.LedgerBalance, "missing_entries", len(r.MissingEntries))
				}
			}
			logger.Info("wallet reconciliation finished", "wallets", len(reports), "unhealthy", unhealthy)
			return nil
		},
	}
}
