package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/peter-kozarec/simutrade/internal/cfg"
	"github.com/peter-kozarec/simutrade/pkg/common"
	"github.com/peter-kozarec/simutrade/pkg/datasource"
	"github.com/peter-kozarec/simutrade/pkg/middleware"
	"github.com/peter-kozarec/simutrade/pkg/protocol"
	"github.com/peter-kozarec/simutrade/pkg/simulation"
	"github.com/peter-kozarec/simutrade/pkg/utility/fixed"
)

type replayOptions struct {
	Symbol      string
	Timeframe   string
	Start       string
	End         string
	InitialCash string
	Quantity    int64
}

func replayCmd() *cobra.Command {
	var opts replayOptions

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Run one session headless against the configured feed and print its report",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, logger, err := setup()
			if err != nil {
				return err
			}
			defer func(logger *zap.Logger) {
				_ = logger.Sync()
			}(logger)

			feed, closeFeed, err := c.OpenFeed(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer func() { _ = closeFeed() }()

			result, err := replay(cmd.Context(), logger, feed, c, opts)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&opts.Symbol, "symbol", "AAPL", "Symbol to replay")
	cmd.Flags().StringVar(&opts.Timeframe, "timeframe", string(common.Timeframe1Day), "Bar timeframe (1min, 5min, 1h, 1d)")
	cmd.Flags().StringVar(&opts.Start, "start", "2024-01-01", "Start of the range (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.End, "end", "2024-12-31", "End of the range, exclusive")
	cmd.Flags().StringVar(&opts.InitialCash, "cash", "10000", "Initial cash")
	cmd.Flags().Int64Var(&opts.Quantity, "buy-and-hold", 0, "Buy this many units at the first mark and hold")
	return cmd
}

// replay runs a manual session to its end. With a quantity it buys at the
// first mark before the first tick.
func replay(ctx context.Context, logger *zap.Logger, feed datasource.Feed, c cfg.Config, opts replayOptions) (simulation.Result, error) {
	start, err := parseTime(opts.Start)
	if err != nil {
		return simulation.Result{}, err
	}
	end, err := parseTime(opts.End)
	if err != nil {
		return simulation.Result{}, err
	}
	cash, err := fixed.Parse(opts.InitialCash)
	if err != nil {
		return simulation.Result{}, fmt.Errorf("invalid cash %q: %w", opts.InitialCash, err)
	}

	flags, err := c.MonitorFlags()
	if err != nil {
		return simulation.Result{}, err
	}
	monitor := middleware.NewMonitor(logger, flags)

	recorder, err := c.OpenRecorder(ctx, logger)
	if err != nil {
		return simulation.Result{}, err
	}
	manager := simulation.NewManager(logger, feed, c.ManagerOptions(recorder)...)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := manager.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown failed", zap.Error(err))
		}
	}()

	var errs []error
	client := simulation.NewClient("replay", monitor.WithSink(simulation.SinkFunc(
		func(_ context.Context, env protocol.Envelope) error {
			if env.Type == protocol.TypeError {
				var data protocol.ErrorData
				if err := env.Decode(&data); err == nil {
					errs = append(errs, fmt.Errorf("error %d: %s", data.Code, data.Message))
				}
			}
			return nil
		})))

	session, err := manager.Open(ctx, client, simulation.Config{
		Id:              "replay",
		Symbol:          opts.Symbol,
		Timeframe:       common.Timeframe(opts.Timeframe),
		Start:           start,
		End:             end,
		InitialCash:     cash,
		ProtocolVersion: protocol.Version,
		Manual:          true,
	})
	if err != nil {
		return simulation.Result{}, err
	}

	results := make(chan simulation.Result, 1)
	session.Run(ctx, func(result simulation.Result) { results <- result })

	if opts.Quantity > 0 {
		quantity := opts.Quantity
		if err := session.Submit(common.OrderRequest{
			Id:       "buy-and-hold",
			Side:     common.OrderSideBuy,
			Type:     common.OrderTypeMarket,
			Quantity: &quantity,
			Timing:   common.ExecutionTimingImmediate,
		}); err != nil {
			return simulation.Result{}, err
		}
	}
	if err := session.Advance(math.MaxInt32); err != nil {
		return simulation.Result{}, err
	}

	select {
	case result := <-results:
		return result, multierr.Combine(errs...)
	case <-ctx.Done():
		return simulation.Result{}, ctx.Err()
	}
}

func printResult(w io.Writer, result simulation.Result) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(struct {
		SessionId string `json:"session_id"`
		Symbol    string `json:"symbol"`
		Reason    string `json:"reason"`
		Report    any    `json:"report"`
	}{
		SessionId: result.SessionId,
		Symbol:    result.Symbol,
		Reason:    result.Reason,
		Report:    result.Report,
	})
}

func parseTime(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q", value)
}
