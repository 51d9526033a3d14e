package simulation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/peter-kozarec/simutrade/pkg/common"
	"github.com/peter-kozarec/simutrade/pkg/datasource"
	"github.com/peter-kozarec/simutrade/pkg/exchange/sandbox"
	"github.com/peter-kozarec/simutrade/pkg/protocol"
	"github.com/peter-kozarec/simutrade/pkg/utility/fixed"
)

func createTestSession(t *testing.T, sink *recordingSink) *Session {
	t.Helper()
	cfg := Config{
		Id:          "s1",
		Symbol:      "AAPL",
		Timeframe:   common.Timeframe1Day,
		Start:       day0,
		End:         day0.AddDate(0, 0, 5),
		InitialCash: fixed.FromInt(10000, 0),
		Manual:      true,
	}
	series := datasource.NewSliceSeries(createTestBars("AAPL", common.Timeframe1Day, day0, 152, 155, 149))
	s, err := NewSession(zap.NewNop(), cfg, Settings{AllowShort: true}, NewClient("c1", sink), series)
	require.NoError(t, err)
	return s
}

func TestSession_QueuedCommandsAnsweredOnEnd(t *testing.T) {
	sink := &recordingSink{}
	s := createTestSession(t, sink)

	require.NoError(t, s.Submit(common.OrderRequest{
		Id:       "o1",
		Side:     common.OrderSideBuy,
		Type:     common.OrderTypeMarket,
		Quantity: quantity(1),
	}))
	require.NoError(t, s.Cancel("o9"))
	require.NoError(t, s.Advance(1))

	// The loop stopped before any of them was dispatched.
	s.finish(context.Background(), context.Canceled)

	errs := sink.all(protocol.TypeError)
	require.Len(t, errs, 2)
	for i, orderId := range []string{"o1", "o9"} {
		var data protocol.ErrorData
		require.NoError(t, errs[i].Decode(&data))
		assert.Equal(t, int(protocol.CodeSessionEnded), data.Code)
		assert.Equal(t, orderId, data.OrderId)
		assert.Equal(t, "s1", data.SessionId)
	}

	assert.Equal(t, 0, sink.count(protocol.TypeFill))
	assert.Equal(t, 0, sink.count(protocol.TypeTick))
	require.Equal(t, 1, sink.count(protocol.TypeSessionEnd))
	assert.Equal(t, protocol.TypeSessionEnd, sink.envs[len(sink.envs)-1].Type)

	var end protocol.SessionEndData
	require.NoError(t, sink.all(protocol.TypeSessionEnd)[0].Decode(&end))
	assert.Equal(t, ReasonCancelled, end.Reason)

	assert.ErrorIs(t, s.Submit(common.OrderRequest{Id: "o2"}), sandbox.ErrSessionEnded)
	assert.Equal(t, StateEnded, s.State())
	assert.Equal(t, uint64(3), s.Statistics().Dropped)
}
