package main

import (
	"context"
	"fmt"

	"github.com/alexxvives/JetChance-sub001/internal/api/handler"
	"github.com/alexxvives/JetChance-sub001/internal/config"
	"github.com/alexxvives/JetChance-sub001/internal/domain/booking"
	"github.com/alexxvives/JetChance-sub001/internal/domain/flight"
	"github.com/alexxvives/JetChance-sub001/internal/domain/outbox"
	"github.com/alexxvives/JetChance-sub001/internal/domain/transaction"
	"github.com/alexxvives/JetChance-sub001/internal/infrastructure/memory"
	"github.com/alexxvives/JetChance-sub001/internal/infrastructure/postgres"
)

// storage はフライト在庫・予約台帳・送信待ちイベントの保存先
type storage struct {
	txManager   transaction.Manager
	flightRepo  flight.Repository
	bookingRepo booking.Repository
	outboxRepo  outbox.Repository
	checkers    map[string]handler.Checker
	close       func()
}

// openStorage は STORAGE_DRIVER に応じて保存先を初期化する
// memory はプロセス終了でデータが消えるためローカル開発専用
func openStorage(cfg *config.DatabaseConfig) (*storage, error) {
	switch cfg.Driver {
	case config.StorageMemory:
		store := memory.NewStore()
		return &storage{
			txManager:   store,
			flightRepo:  store.Flights(),
			bookingRepo: store.Bookings(),
			outboxRepo:  store.Outbox(),
			checkers:    map[string]handler.Checker{},
			close:       func() {},
		}, nil
	case config.StoragePostgres:
		db, err := postgres.NewConnection(cfg)
		if err != nil {
			return nil, err
		}
		if err := postgres.RunMigrations(db.DB, cfg.MigrationsPath); err != nil {
			db.Close()
			return nil, err
		}
		return &storage{
			txManager:   postgres.NewTxManager(db),
			flightRepo:  postgres.NewFlightRepository(db),
			bookingRepo: postgres.NewBookingRepository(db),
			outboxRepo:  postgres.NewOutboxRepository(db),
			checkers: map[string]handler.Checker{
				"database": handler.CheckerFunc(func(ctx context.Context) error { return postgres.Ping(ctx, db) }),
			},
			close: func() { db.Close() },
		}, nil
	default:
		return nil, fmt.Errorf("未対応のストレージです: %s", cfg.Driver)
	}
}
