package strategy

import (
	"math/rand"
	"testing"

	"stoplossbot/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// randomWalk produces a snapshot sequence that visits every region: prices
// move in small steps, positions open and close after emitted orders, and
// tradability and outstanding orders flip now and then.
func randomWalk(seed int64, n int) []models.Snapshot {
	rnd := rand.New(rand.NewSource(seed))
	price := decimal.NewFromInt(100)
	var pos *models.PositionInfo
	out := make([]models.Snapshot, 0, n)

	for i := 0; i < n; i++ {
		step := decimal.New(int64(rnd.Intn(81)-40), -2)
		price = price.Add(step)
		if !price.IsPositive() {
			price = decimal.NewFromInt(1)
		}

		snap := models.Snapshot{Position: pos}
		if rnd.Intn(10) != 0 {
			spread := decimal.New(int64(rnd.Intn(10)), -2)
			snap.Candle = &models.Candle{Highest: price.Add(spread), Lowest: price.Sub(spread)}
		}
		if rnd.Intn(5) == 0 {
			snap.InstrumentInfo = &models.InstrumentInfo{CanTrade: rnd.Intn(4) != 0}
		}
		if rnd.Intn(8) == 0 {
			snap.Order = &models.OutstandingOrder{ID: "o"}
		}
		// flip the position roughly like fills would
		if rnd.Intn(6) == 0 {
			if pos == nil {
				pos = &models.PositionInfo{EnterPrice: price, Quantity: decimal.NewFromInt(1)}
			} else {
				pos = nil
			}
		}
		out = append(out, snap)
	}
	return out
}

func replay(t *testing.T, p Params, snaps []models.Snapshot) ([]Decision, []State) {
	s, err := New(p, nil)
	require.NoError(t, err)
	decisions := make([]Decision, 0, len(snaps))
	states := make([]State, 0, len(snaps))
	for _, snap := range snaps {
		decisions = append(decisions, s.OnSnapshot(snap))
		states = append(states, s.State())
	}
	return decisions, states
}

func TestProperties_TotalityAndDeterminism(t *testing.T) {
	p := testParams(t)
	for seed := int64(1); seed <= 20; seed++ {
		snaps := randomWalk(seed, 400)
		first, firstStates := replay(t, p, snaps)
		second, secondStates := replay(t, p, snaps)

		require.Len(t, first, len(snaps))
		for i := range first {
			assert.NotEmpty(t, first[i].Reason)
			assert.Equal(t, first[i].Kind, second[i].Kind)
			assert.Equal(t, first[i].Reason, second[i].Reason)
			if first[i].Order != nil {
				require.NotNil(t, second[i].Order)
				assert.Equal(t, first[i].Order.Lots, second[i].Order.Lots)
				assert.True(t, first[i].Order.Price.Equal(second[i].Order.Price))
			}
		}
		last, lastAgain := firstStates[len(firstStates)-1], secondStates[len(secondStates)-1]
		assert.Equal(t, last.CanTrade, lastAgain.CanTrade)
		assert.Equal(t, last.LastOutcome, lastAgain.LastOutcome)
		assert.Equal(t, last.Extremum.Valid, lastAgain.Extremum.Valid)
		assert.True(t, last.Extremum.Decimal.Equal(lastAgain.Extremum.Decimal))
	}
}

func TestProperties_StepInvariants(t *testing.T) {
	p := testParams(t)
	for seed := int64(100); seed < 120; seed++ {
		st := initialState()
		for _, snap := range randomWalk(seed, 400) {
			next, dec := Decide(st, snap, p)

			if snap.Order != nil {
				assert.True(t, dec.IsPass())
				assert.Equal(t, st.LastOutcome, next.LastOutcome)
				assert.Equal(t, st.Extremum, next.Extremum)
			}

			if snap.Candle == nil {
				assert.Equal(t, st.Extremum, next.Extremum)
				assert.Equal(t, st.LastOutcome, next.LastOutcome)
			}

			if dec.Order != nil && dec.Order.Side == models.OrderSideBuy {
				assert.True(t, next.CanTrade, "buy emitted while trading is disabled")
			}

			if dec.Reason == ReasonTrailHigh {
				assert.True(t, next.Extremum.Decimal.GreaterThanOrEqual(st.Extremum.Decimal))
			}

			if dec.Order != nil && dec.Order.Side == models.OrderSideSell {
				switch dec.Reason {
				case ReasonTakeProfit:
					assert.Equal(t, OutcomeProfit, next.LastOutcome)
				case ReasonStopLoss:
					assert.Equal(t, OutcomeLoss, next.LastOutcome)
				default:
					t.Fatalf("sell from unexpected branch %s", dec.Reason)
				}
			} else {
				assert.Equal(t, st.LastOutcome, next.LastOutcome)
			}

			if dec.Order != nil {
				assert.True(t, next.Extremum.Decimal.Equal(dec.Order.Price))
			}

			st = next
		}
	}
}
