package cfg

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/peter-kozarec/simutrade/pkg/archive"
	"github.com/peter-kozarec/simutrade/pkg/common"
	"github.com/peter-kozarec/simutrade/pkg/datasource"
	"github.com/peter-kozarec/simutrade/pkg/datasource/duckdb"
	"github.com/peter-kozarec/simutrade/pkg/datasource/historical"
	"github.com/peter-kozarec/simutrade/pkg/datasource/synthetic"
	"github.com/peter-kozarec/simutrade/pkg/middleware"
	"github.com/peter-kozarec/simutrade/pkg/server"
	"github.com/peter-kozarec/simutrade/pkg/simulation"
	"github.com/peter-kozarec/simutrade/pkg/tools/bar"
	"github.com/peter-kozarec/simutrade/pkg/utility/fixed"
)

// OpenFeed builds the configured bar feed behind a shared cache. The returned
// close function releases the underlying source.
func (c *Config) OpenFeed(ctx context.Context, logger *zap.Logger) (datasource.Feed, func() error, error) {
	var (
		feed    datasource.Feed
		closeFn = func() error { return nil }
	)

	switch c.Feed.Kind {
	case FeedSynthetic:
		s := c.Feed.Synthetic
		feed = synthetic.NewFeed(
			synthetic.WithSeed(s.Seed),
			synthetic.WithStartPrice(fixed.MustParse(s.StartPrice)),
			synthetic.WithDynamics(fixed.MustParse(s.Drift), fixed.MustParse(s.Volatility)),
			synthetic.WithWeekdaysOnly(s.WeekdaysOnly),
			synthetic.WithMaxBars(s.MaxBars))
	case FeedHistorical:
		feed = historical.NewFeed(c.Feed.Historical.Dir)
	case FeedDuckDB:
		db, err := duckdb.NewFeed(c.Feed.DuckDB.DSN, c.Feed.DuckDB.Table)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Connect(ctx); err != nil {
			return nil, nil, err
		}
		feed, closeFn = db, db.Close
	default:
		return nil, nil, fmt.Errorf("%w: unknown feed %q", ErrInvalidConfig, c.Feed.Kind)
	}

	if c.Feed.ResampleFrom != "" {
		feed = bar.NewResampledFeed(feed, common.Timeframe(c.Feed.ResampleFrom))
	}

	logger.Info("feed ready",
		zap.String("kind", c.Feed.Kind),
		zap.String("resample_from", c.Feed.ResampleFrom),
		zap.Int("cache_capacity", c.Feed.CacheCapacity))
	return datasource.NewCachedFeed(logger, feed, c.Feed.CacheCapacity), closeFn, nil
}

// OpenRecorder connects every configured archive. With none configured it
// returns a recorder that drops records.
func (c *Config) OpenRecorder(ctx context.Context, logger *zap.Logger) (archive.Recorder, error) {
	var recorders archive.Multi

	if c.Archive.File != "" {
		r, err := archive.NewFileRecorder(c.Archive.File)
		if err != nil {
			return nil, err
		}
		recorders = append(recorders, r)
		logger.Info("archiving to file", zap.String("path", c.Archive.File))
	}

	if rc := c.Archive.Redis; rc.Address != "" {
		r, err := archive.DialRedis(ctx, rc.Address, rc.Password, rc.Db, rc.Key, rc.Limit)
		if err != nil {
			_ = recorders.Close()
			return nil, err
		}
		recorders = append(recorders, r)
		logger.Info("archiving to redis", zap.String("address", rc.Address))
	}

	if pc := c.Archive.Postgres; pc.Host != "" {
		r, err := archive.ConnectPostgres(ctx, archive.ConnString(pc.Host, pc.Port, pc.Username, pc.Password, pc.DbName))
		if err != nil {
			_ = recorders.Close()
			return nil, err
		}
		recorders = append(recorders, r)
		logger.Info("archiving to postgres", zap.String("host", pc.Host), zap.String("dbname", pc.DbName))
	}

	switch len(recorders) {
	case 0:
		return archive.Nop{}, nil
	case 1:
		return recorders[0], nil
	default:
		return recorders, nil
	}
}

func (c *Config) MonitorFlags() (middleware.MonitorFlags, error) {
	return middleware.ParseMonitorFlags(c.Monitor)
}

func (c *Config) ManagerOptions(recorder archive.Recorder) []simulation.ManagerOption {
	return []simulation.ManagerOption{
		simulation.WithRecorder(recorder),
		simulation.WithMaxSessions(c.Session.MaxSessions),
		simulation.WithManualClock(c.Session.ManualClock),
		simulation.WithSettings(simulation.Settings{
			QueueCapacity:     c.Session.QueueCapacity,
			CommissionPerUnit: fixed.MustParse(c.Session.CommissionPerUnit),
			AllowShort:        c.Session.AllowShort,
			PrivacyMode:       c.Session.PrivacyMode,
		}),
	}
}

func (c *Config) ServerConfig() server.Config {
	return server.Config{
		Address:        c.Listen,
		ReadLimit:      c.Websocket.ReadLimit,
		WriteQueue:     c.Websocket.WriteQueue,
		WriteTimeout:   c.Websocket.WriteTimeout,
		PongWait:       c.Websocket.PongWait,
		PingInterval:   c.Websocket.PingInterval,
		AllowedOrigins: c.Websocket.AllowedOrigins,
	}
}
