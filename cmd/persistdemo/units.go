package main

import (
	"context"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-saas/persist"
	"github.com/go-saas/persist/event"
	pgorm "github.com/go-saas/persist/gorm"
	"github.com/go-saas/persist/internal/config"
	"github.com/go-saas/persist/mongo"
	"github.com/go-saas/persist/pgx"
	"github.com/go-saas/persist/sqldb"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	msqlite "modernc.org/sqlite"
)

// unitConfig maps a configured unit to its driver
func unitConfig(u config.UnitConfig, logger log.Logger) (*persist.UnitConfig, error) {
	props := persist.Properties(u.Properties)
	var source persist.UnitOption
	switch u.Driver {
	case "gorm":
		source = persist.ApplicationManaged(pgorm.NewCreator(sqlite.Open, &gorm.Config{}), props)
	case "sql":
		source = persist.ApplicationManaged(sqldb.NewCreator(&msqlite.Driver{}, sqldb.WithSQLLogger(logger)), props)
	case "pgx":
		source = persist.ApplicationManaged(pgx.NewCreator(), props)
	case "mongo":
		source = persist.ApplicationManaged(mongo.NewCreator(), props)
	case "event":
		source = persist.ContainerManaged(persist.FactoryInstance(event.NewFactory(newLogProducer(log.With(logger, "unit", u.Name)))))
	default:
		return nil, fmt.Errorf("unit %s: unknown driver %s", u.Name, u.Driver)
	}
	return persist.NewUnit(u.Name, source, persist.WithTag(u.Tag),
		persist.WithUnitOfWorkOptions(persist.WithHandleProperties(persist.Properties(u.HandleProperties)))), nil
}

func newModule(cfg *config.Config, logger log.Logger) (*persist.Module, error) {
	units := make([]*persist.UnitConfig, 0, len(cfg.Units))
	for _, u := range cfg.Units {
		uc, err := unitConfig(u, logger)
		if err != nil {
			return nil, err
		}
		units = append(units, uc)
	}
	return persist.NewModule(units, persist.WithModuleLogger(logger))
}

// logProducer publishes events to the log
type logProducer struct {
	log *log.Helper
}

var _ event.Producer = (*logProducer)(nil)

func newLogProducer(logger log.Logger) *logProducer {
	return &logProducer{log: log.NewHelper(logger)}
}

func (p *logProducer) Send(ctx context.Context, msg event.Event) error {
	return p.BatchSend(ctx, []event.Event{msg})
}

func (p *logProducer) BatchSend(ctx context.Context, msg []event.Event) error {
	for _, m := range msg {
		p.log.Infof("event %s: %s", m.Key(), m.Value())
	}
	return nil
}

func (p *logProducer) Close() error {
	return nil
}
