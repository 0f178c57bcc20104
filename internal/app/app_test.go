package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/home-express/finance-core/internal/config"
	"github.com/home-express/finance-core/internal/events"
	"github.com/home-express/finance-core/internal/model"
	"github.com/home-express/finance-core/internal/repository"
	"github.com/home-express/finance-core/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(context.Context, *model.Payout) (model.DispatchResult, error) {
	return model.DispatchResult{Success: true, TransactionRef: "TRX-1"}, nil
}

func TestBuild_WiresServices(t *testing.T) {
	db := repository.OpenTestDB(t)
	svc := Build(db, events.Logger{}, nopDispatcher{}, config.Default())

	require.NotNil(t, svc.Bookings)
	require.NotNil(t, svc.Payouts)

	ctx := context.Background()
	b, err := svc.Bookings.CreateBooking(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusPending, b.Status)

	_, err = svc.Payouts.CreatePayoutBatch(ctx, 7)
	assert.True(t, model.HasCode(err, model.CodeNothingToPayout), "got %v", err)
}

func TestNewNotifier_FallsBackToLogger(t *testing.T) {
	n, stop, err := NewNotifier(nil, config.Default())
	require.NoError(t, err)
	defer stop()
	assert.IsType(t, events.Logger{}, n)
}

func TestNewNotifier_StreamPublisher(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewUniversalClient(&goredis.UniversalOptions{Addrs: []string{mr.Addr()}})
	adapter := redis.NewRedisAdapterFromClient("app-notifier-test", "", client)

	n, stop, err := NewNotifier(adapter, config.Default())
	require.NoError(t, err)
	defer stop()
	assert.IsType(t, &events.StreamPublisher{}, n)
}

func TestHealth_ReportsEveryDependency(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewUniversalClient(&goredis.UniversalOptions{Addrs: []string{mr.Addr()}})
	adapter := redis.NewRedisAdapterFromClient("app-health-test", "", client)

	status := Health(repository.OpenTestDB(t), adapter).Check(context.Background())
	assert.Equal(t, map[string]string{"postgres": "ok", "redis": "ok"}, status)

	mr.Close()
	status = Health(repository.OpenTestDB(t), adapter).Check(context.Background())
	assert.NotEqual(t, "ok", status["redis"])
}

func TestConnectRedis_NoAddress(t *testing.T) {
	adapter, err := ConnectRedis(config.Default(), "unused")
	require.NoError(t, err)
	assert.Nil(t, adapter)
}

func TestNewBankClient_SkipsMissingSecondary(t *testing.T) {
	cfg := config.Default()
	_, err := NewBankClient(cfg)
	assert.Error(t, err)

	cfg.BankPrimaryUrl = "http://bank.local"
	client, err := NewBankClient(cfg)
	require.NoError(t, err)
	defer client.Close()
	assert.Len(t, client.Providers(), 1)
}

func TestEnvPathFromArgs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "finance.env")
	require.NoError(t, os.WriteFile(path, []byte("APP_ENV=test\n"), 0o600))

	assert.Equal(t, path, EnvPathFromArgs([]string{"api", "--env=" + path}))
	assert.Equal(t, "", EnvPathFromArgs([]string{"api", "--env=/does/not/exist"}))
	assert.Equal(t, "", EnvPathFromArgs([]string{"api"}))
}
