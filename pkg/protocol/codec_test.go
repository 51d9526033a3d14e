package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peter-kozarec/simutrade/pkg/common"
	"github.com/peter-kozarec/simutrade/pkg/utility/fixed"
)

func TestCodec_RoundTrip(t *testing.T) {
	for _, codec := range []Codec{JSON, Proto} {
		t.Run(codec.Name(), func(t *testing.T) {
			env, err := NewEnvelope(TypeFill, FillData{
				OrderId:          "o-1",
				FillId:           "f-1",
				ExecutedPrice:    fixed.FromInt(150, 0),
				ExecutedQuantity: 10,
				Timestamp:        time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			})
			require.NoError(t, err)

			frame, err := codec.Marshal(env)
			require.NoError(t, err)

			decoded, err := codec.Unmarshal(frame)
			require.NoError(t, err)
			assert.Equal(t, TypeFill, decoded.Type)

			var fill FillData
			require.NoError(t, decoded.Decode(&fill))
			assert.Equal(t, "o-1", fill.OrderId)
			assert.Equal(t, "f-1", fill.FillId)
			assert.True(t, fill.ExecutedPrice.Eq(fixed.FromInt(150, 0)))
			assert.Equal(t, int64(10), fill.ExecutedQuantity)
			assert.True(t, fill.Timestamp.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))
		})
	}
}

func TestCodec_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		codec Codec
		frame []byte
	}{
		{"json empty", JSON, nil},
		{"json garbage", JSON, []byte("{not json")},
		{"json missing type", JSON, []byte(`{"data":{}}`)},
		{"proto empty", Proto, nil},
		{"proto garbage", Proto, []byte{0xff, 0xff, 0xff}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.codec.Unmarshal(tt.frame)
			require.Error(t, err)
			assert.Equal(t, CodeMalformed, AsError(err).Code)
		})
	}
}

func TestEnvelope_DecodeOrder(t *testing.T) {
	env, err := JSON.Unmarshal([]byte(`{"type":"order","data":{"order_id":"a","side":"buy","type":"market","quantity":10}}`))
	require.NoError(t, err)

	var data OrderData
	require.NoError(t, env.Decode(&data))

	req := data.Request()
	assert.Equal(t, "a", req.Id)
	assert.Equal(t, common.OrderSideBuy, req.Side)
	assert.Equal(t, common.ExecutionTimingImmediate, req.Timing)
	assert.Equal(t, common.TimeInForceGoodTillCancel, req.TimeInForce)
	require.NotNil(t, req.Quantity)
	assert.Equal(t, int64(10), *req.Quantity)
	assert.Nil(t, req.Amount)
}

func TestEnvelope_DecodeRejectsInvalidEnums(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"missing id", `{"side":"buy","type":"market","quantity":1}`},
		{"bad side", `{"order_id":"a","side":"hold","type":"market","quantity":1}`},
		{"bad type", `{"order_id":"a","side":"buy","type":"stop","quantity":1}`},
		{"bad timing", `{"order_id":"a","side":"buy","type":"market","quantity":1,"exec_timing":"later"}`},
		{"bad tif", `{"order_id":"a","side":"buy","type":"market","quantity":1,"tif":"fok"}`},
		{"wrong json type", `{"order_id":"a","side":"buy","type":"market","quantity":"ten"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := Envelope{Type: TypeOrder, Data: []byte(tt.payload)}
			var data OrderData
			err := env.Decode(&data)
			require.Error(t, err)
			assert.Equal(t, CodeMalformed, AsError(err).Code)
		})
	}
}

func TestIsSupportedVersion(t *testing.T) {
	assert.True(t, IsSupportedVersion(""))
	assert.True(t, IsSupportedVersion("1.0"))
	assert.False(t, IsSupportedVersion("2.0"))
}

func TestNewAccountUpdateData(t *testing.T) {
	account := common.Account{
		Cash:   fixed.FromInt(8500, 0),
		Equity: fixed.FromInt(10000, 0),
		Position: common.Position{
			Symbol:        "AAPL",
			Quantity:      10,
			AvgEntryPrice: fixed.FromInt(150, 0),
			UnrealizedPnL: fixed.Zero,
		},
		OpenOrders: []common.Order{{
			Id:          "l-1",
			Side:        common.OrderSideSell,
			Type:        common.OrderTypeLimit,
			Quantity:    10,
			Price:       fixed.FromInt(160, 0),
			TimeInForce: common.TimeInForceGoodTillCancel,
			Status:      common.OrderStatusPending,
		}},
	}

	data := NewAccountUpdateData("s", account, false)
	require.Len(t, data.Positions, 1)
	assert.Equal(t, "AAPL", data.Positions[0].Symbol)
	assert.Equal(t, int64(10), data.Positions[0].Quantity)
	require.NotNil(t, data.Positions[0].UnrealizedPnL)
	require.Len(t, data.OpenOrders, 1)
	assert.Equal(t, common.OrderStatusAccepted, data.OpenOrders[0].Status)
	assert.Equal(t, int64(10), data.OpenOrders[0].RemainingQty)
	require.NotNil(t, data.OpenOrders[0].Price)

	private := NewAccountUpdateData("s", account, true)
	assert.Nil(t, private.Positions[0].UnrealizedPnL)

	account.Position.Quantity = 0
	flat := NewAccountUpdateData("s", account, false)
	assert.Empty(t, flat.Positions)
}

func TestAsError(t *testing.T) {
	err := Errorf(CodeUnknownOrder, "unknown order %s", "x").WithOrder("x")
	pErr := AsError(err)
	assert.Equal(t, CodeUnknownOrder, pErr.Code)
	assert.Equal(t, "x", pErr.Data("s").OrderId)

	assert.Equal(t, CodeInternal, AsError(assert.AnError).Code)
}
