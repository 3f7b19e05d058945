// Package indicators wraps cinar/indicator's channel pipeline behind
// slice-in, latest-value-out helpers. Every helper returns an error when the
// series is too short to produce a value; callers skip, they never substitute.
package indicators

import (
	"fmt"

	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
	"github.com/cinar/indicator/v2/volatility"
)

func toChan(values []float64) chan float64 {
	ch := make(chan float64, len(values))
	for _, v := range values {
		ch <- v
	}
	close(ch)
	return ch
}

func collect(ch <-chan float64) []float64 {
	var out []float64
	for v := range ch {
		out = append(out, v)
	}
	return out
}

func last(values []float64, name string) (float64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("%s: insufficient data", name)
	}
	return values[len(values)-1], nil
}

// EMA returns the latest exponential moving average over period.
func EMA(closes []float64, period int) (float64, error) {
	if len(closes) < period {
		return 0, fmt.Errorf("ema(%d): need %d closes, have %d", period, period, len(closes))
	}
	ema := trend.NewEmaWithPeriod[float64](period)
	return last(collect(ema.Compute(toChan(closes))), "ema")
}

// RSI returns the latest relative strength index over period.
func RSI(closes []float64, period int) (float64, error) {
	if len(closes) <= period {
		return 0, fmt.Errorf("rsi(%d): need more than %d closes, have %d", period, period, len(closes))
	}
	rsi := momentum.NewRsiWithPeriod[float64](period)
	return last(collect(rsi.Compute(toChan(closes))), "rsi")
}

// MACD returns the latest MACD line, signal line and histogram for the
// standard 12/26/9 configuration.
func MACD(closes []float64) (macdLine, signalLine, histogram float64, err error) {
	const fast, slow, signal = 12, 26, 9
	if len(closes) < slow+signal {
		return 0, 0, 0, fmt.Errorf("macd: need %d closes, have %d", slow+signal, len(closes))
	}
	macd := trend.NewMacdWithPeriod[float64](fast, slow, signal)
	macdChan, signalChan := macd.Compute(toChan(closes))

	var macdVals, signalVals []float64
	for {
		m, mok := <-macdChan
		s, sok := <-signalChan
		if !mok || !sok {
			break
		}
		macdVals = append(macdVals, m)
		signalVals = append(signalVals, s)
	}
	if len(macdVals) == 0 {
		return 0, 0, 0, fmt.Errorf("macd: insufficient data")
	}
	m := macdVals[len(macdVals)-1]
	s := signalVals[len(signalVals)-1]
	return m, s, m - s, nil
}

// BollingerBands returns the latest lower, middle and upper bands over period
// with the library's fixed 2 standard deviations.
func BollingerBands(closes []float64, period int) (lower, middle, upper float64, err error) {
	if len(closes) < period {
		return 0, 0, 0, fmt.Errorf("bollinger(%d): need %d closes, have %d", period, period, len(closes))
	}
	bb := volatility.NewBollingerBands[float64]()
	bb.Period = period
	lowerChan, middleChan, upperChan := bb.Compute(toChan(closes))

	var lowers, middles, uppers []float64
	for {
		l, lok := <-lowerChan
		m, mok := <-middleChan
		u, uok := <-upperChan
		if !lok || !mok || !uok {
			break
		}
		lowers = append(lowers, l)
		middles = append(middles, m)
		uppers = append(uppers, u)
	}
	if len(middles) == 0 {
		return 0, 0, 0, fmt.Errorf("bollinger: insufficient data")
	}
	n := len(middles) - 1
	return lowers[n], middles[n], uppers[n], nil
}

// ATR returns the latest 14-period average true range.
func ATR(highs, lows, closes []float64) (float64, error) {
	const period = 14
	if len(highs) != len(lows) || len(lows) != len(closes) {
		return 0, fmt.Errorf("atr: mismatched series lengths %d/%d/%d", len(highs), len(lows), len(closes))
	}
	if len(closes) <= period {
		return 0, fmt.Errorf("atr: need more than %d candles, have %d", period, len(closes))
	}
	atr := volatility.NewAtr[float64]()
	return last(collect(atr.Compute(toChan(highs), toChan(lows), toChan(closes))), "atr")
}
