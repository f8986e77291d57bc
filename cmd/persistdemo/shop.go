package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-saas/persist"
	"github.com/go-saas/persist/event"
	pgorm "github.com/go-saas/persist/gorm"
	"github.com/go-saas/persist/internal/config"
	"github.com/go-saas/persist/mongo"
	"github.com/go-saas/persist/pgx"
	"github.com/go-saas/persist/sqldb"
	"go.mongodb.org/mongo-driver/bson"
)

var errOrderFailed = errors.New("order failed")

type Order struct {
	ID   uint `gorm:"primaryKey"`
	Item string
}

// shop writes every order to all units of the module
type shop struct {
	module *persist.Module
	log    *log.Helper
}

func newShop(ctx context.Context, cfg *config.Config, logger log.Logger) (*shop, error) {
	m, err := newModule(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := m.Service().Start(ctx); err != nil {
		return nil, err
	}
	s := &shop{module: m, log: log.NewHelper(logger)}
	if err := s.migrate(ctx); err != nil {
		return nil, errors.Join(err, m.Service().Stop(ctx))
	}
	return s, nil
}

func (s *shop) Close(ctx context.Context) error {
	return s.module.Service().Stop(ctx)
}

func (s *shop) migrate(ctx context.Context) (err error) {
	ctx, err = s.module.UnitOfWork().Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, s.module.UnitOfWork().End(ctx))
	}()
	for _, u := range s.module.Units() {
		h, err := u.Handles().Get(ctx)
		if err != nil {
			return err
		}
		switch h := h.(type) {
		case *pgorm.Handle:
			err = h.DB().WithContext(ctx).AutoMigrate(&Order{})
		case *sqldb.Handle:
			_, err = h.Executor().ExecContext(ctx, "CREATE TABLE IF NOT EXISTS orders (item TEXT NOT NULL)")
		case *pgx.Handle:
			_, err = h.Querier().Exec(ctx, "CREATE TABLE IF NOT EXISTS orders (item TEXT NOT NULL)")
		}
		if err != nil {
			return fmt.Errorf("unit %s: %w", u.Name(), err)
		}
	}
	return nil
}

// PlaceOrder records item on every unit in one transaction. The event of the order is sent in
// a nested transaction of the event units.
func (s *shop) PlaceOrder(ctx context.Context, item string, fail bool) error {
	return persist.WithTransaction(ctx, s.module.Interceptor(), persist.RollbackOnAny(), func(ctx context.Context) error {
		for _, u := range s.module.Units() {
			if err := s.record(ctx, u, item); err != nil {
				return fmt.Errorf("unit %s: %w", u.Name(), err)
			}
		}
		if fail {
			return fmt.Errorf("%w: %s", errOrderFailed, item)
		}
		return nil
	})
}

func (s *shop) record(ctx context.Context, u *persist.Unit, item string) error {
	h, err := u.Handles().Get(ctx)
	if err != nil {
		return err
	}
	switch h := h.(type) {
	case *pgorm.Handle:
		return h.DB().WithContext(ctx).Create(&Order{Item: item}).Error
	case *sqldb.Handle:
		_, err = h.Executor().ExecContext(ctx, "INSERT INTO orders (item) VALUES (?)", item)
	case *pgx.Handle:
		_, err = h.Querier().Exec(ctx, "INSERT INTO orders (item) VALUES ($1)", item)
	case *mongo.Handle:
		_, err = h.Database().Collection("orders").InsertOne(h.Context(ctx), bson.M{"item": item})
	case *event.Outbox:
		err = persist.WithTransaction(ctx, u.Interceptor(), persist.RollbackOnAny(), func(ctx context.Context) error {
			return h.Send(ctx, event.NewMessage("order.placed", []byte(item)))
		})
	default:
		s.log.Warnf("unit %s: nothing to record with %T", u.Name(), h)
	}
	return err
}

// Report counts the orders stored by each unit
func (s *shop) Report(ctx context.Context) (lines []string, err error) {
	ctx, err = s.module.UnitOfWork().Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = errors.Join(err, s.module.UnitOfWork().End(ctx))
	}()
	for _, u := range s.module.Units() {
		h, err := u.Handles().Get(ctx)
		if err != nil {
			return nil, err
		}
		var n int64
		switch h := h.(type) {
		case *pgorm.Handle:
			err = h.DB().WithContext(ctx).Model(&Order{}).Count(&n).Error
		case *sqldb.Handle:
			err = h.Executor().QueryRowContext(ctx, "SELECT COUNT(*) FROM orders").Scan(&n)
		case *pgx.Handle:
			err = h.Querier().QueryRow(ctx, "SELECT COUNT(*) FROM orders").Scan(&n)
		case *mongo.Handle:
			n, err = h.Database().Collection("orders").CountDocuments(h.Context(ctx), bson.M{})
		default:
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("unit %s: %w", u.Name(), err)
		}
		lines = append(lines, fmt.Sprintf("%s\t%d orders", u.Name(), n))
	}
	return lines, nil
}
