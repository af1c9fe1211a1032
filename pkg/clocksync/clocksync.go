// Package clocksync estimates a micro-controller's clock from periodic
// clock samples and converts between host time, controller clock ticks
// and print time.
package clocksync

import (
	"fmt"
	"math"
	"sync"
)

const (
	// RTT_AGE is the aging factor for round-trip-time
	RTT_AGE = 0.000010 / (60.0 * 60.0)

	// DECAY is the exponential decay factor for linear regression
	DECAY = 1.0 / 30.0

	// QUERY_INTERVAL is the clock sampling period in seconds
	QUERY_INTERVAL = 0.9839

	// maxPendingQueries is how many unanswered queries mark the link stale
	maxPendingQueries = 4
)

// Estimate is a point on the regression line of controller clock versus
// host time.
type Estimate struct {
	SampleTime float64 // Host time of the estimate
	Clock      int64   // Controller clock at SampleTime
	Freq       float64 // Estimated controller frequency
}

// ClockSync tracks one controller clock.
type ClockSync struct {
	mu sync.RWMutex

	mcuFreq   float64
	lastClock int64
	est       Estimate

	minHalfRTT float64
	minRTTTime float64

	// Exponentially decaying regression of clock against sent time
	timeAvg         float64
	timeVariance    float64
	clockAvg        float64
	clockCovariance float64
	predictionVar   float64
	lastPredTime    float64

	queriesPending int
}

// New creates a ClockSync for a controller running at mcuFreq ticks per second.
func New(mcuFreq float64) *ClockSync {
	return &ClockSync{
		mcuFreq:    mcuFreq,
		minHalfRTT: 999999999.9,
		est:        Estimate{Freq: mcuFreq},
	}
}

// Connect seeds the estimate from the first clock reading, taken at
// host time sentTime.
func (cs *ClockSync) Connect(clock int64, sentTime float64) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.lastClock = clock
	cs.clockAvg = float64(clock)
	cs.timeAvg = sentTime
	cs.est = Estimate{SampleTime: sentTime, Clock: clock, Freq: cs.mcuFreq}
	cs.predictionVar = (0.001 * cs.mcuFreq) * (0.001 * cs.mcuFreq)
}

// MCUFreq returns the nominal controller frequency.
func (cs *ClockSync) MCUFreq() float64 {
	return cs.mcuFreq
}

// NoteQuery records that a clock query was sent.
func (cs *ClockSync) NoteQuery() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.queriesPending++
}

// HandleClock folds a 32-bit clock response into the regression. sentTime
// and receiveTime bracket the query on the host clock.
func (cs *ClockSync) HandleClock(clock32 uint32, sentTime, receiveTime float64) Estimate {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.queriesPending = 0
	clock := cs.extendLocked(clock32)
	cs.lastClock = clock
	if sentTime == 0 {
		return cs.est
	}

	halfRTT := 0.5 * (receiveTime - sentTime)
	agedRTT := (sentTime - cs.minRTTTime) * RTT_AGE
	if halfRTT < cs.minHalfRTT+agedRTT {
		cs.minHalfRTT = halfRTT
		cs.minRTTTime = sentTime
	}

	// Filter out extreme outliers
	expClock := (sentTime-cs.timeAvg)*cs.est.Freq + cs.clockAvg
	clockDiff2 := (float64(clock) - expClock) * (float64(clock) - expClock)
	threshold := 0.000500 * cs.mcuFreq
	if clockDiff2 > 25.0*cs.predictionVar && clockDiff2 > threshold*threshold {
		if float64(clock) > expClock && sentTime < cs.lastPredTime+10.0 {
			return cs.est
		}
		cs.predictionVar = (0.001 * cs.mcuFreq) * (0.001 * cs.mcuFreq)
	} else {
		cs.lastPredTime = sentTime
		cs.predictionVar = (1.0 - DECAY) * (cs.predictionVar + clockDiff2*DECAY)
	}

	diffSentTime := sentTime - cs.timeAvg
	cs.timeAvg += DECAY * diffSentTime
	cs.timeVariance = (1.0 - DECAY) * (cs.timeVariance + diffSentTime*diffSentTime*DECAY)
	diffClock := float64(clock) - cs.clockAvg
	cs.clockAvg += DECAY * diffClock
	cs.clockCovariance = (1.0 - DECAY) * (cs.clockCovariance + diffSentTime*diffClock*DECAY)

	freq := cs.mcuFreq
	if cs.timeVariance > 0 {
		freq = cs.clockCovariance / cs.timeVariance
	}
	cs.est = Estimate{
		SampleTime: cs.timeAvg + cs.minHalfRTT,
		Clock:      int64(cs.clockAvg),
		Freq:       freq,
	}
	return cs.est
}

func (cs *ClockSync) extendLocked(clock32 uint32) int64 {
	delta := int32(clock32 - uint32(cs.lastClock&0xffffffff))
	return cs.lastClock + int64(delta)
}

// Clock32ToClock64 extends a 32-bit clock relative to the last reading.
func (cs *ClockSync) Clock32ToClock64(clock32 uint32) int64 {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.extendLocked(clock32)
}

// GetClock returns the estimated controller clock at host time eventtime.
func (cs *ClockSync) GetClock(eventtime float64) int64 {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return int64(float64(cs.est.Clock) + (eventtime-cs.est.SampleTime)*cs.est.Freq)
}

// EstimateClockSystime returns the host time at which the controller is
// expected to reach reqClock.
func (cs *ClockSync) EstimateClockSystime(reqClock int64) float64 {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return float64(reqClock-cs.est.Clock)/cs.est.Freq + cs.est.SampleTime
}

// PrintTimeToClock converts a print time to a controller clock value.
func (cs *ClockSync) PrintTimeToClock(printTime float64) int64 {
	return int64(printTime * cs.mcuFreq)
}

// ClockToPrintTime converts a controller clock value to a print time.
func (cs *ClockSync) ClockToPrintTime(clock int64) float64 {
	return float64(clock) / cs.mcuFreq
}

// EstimatedPrintTime returns the print time the controller is at for
// host time eventtime.
func (cs *ClockSync) EstimatedPrintTime(eventtime float64) float64 {
	return cs.ClockToPrintTime(cs.GetClock(eventtime))
}

// PrintTimeToSystime returns the host time corresponding to printTime.
func (cs *ClockSync) PrintTimeToSystime(printTime float64) float64 {
	return cs.EstimateClockSystime(cs.PrintTimeToClock(printTime))
}

// IsActive reports whether recent queries have been answered.
func (cs *ClockSync) IsActive() bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.queriesPending <= maxPendingQueries
}

// GetEstimate returns the current clock estimate.
func (cs *ClockSync) GetEstimate() Estimate {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.est
}

// PredictionStddev returns the standard deviation of the clock prediction
// in ticks.
func (cs *ClockSync) PredictionStddev() float64 {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return math.Sqrt(cs.predictionVar)
}

// Stats returns a one-line summary suitable for periodic logging.
func (cs *ClockSync) Stats() string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return fmt.Sprintf("freq=%d rtt=%.6f stddev=%.3f", int64(cs.est.Freq), 2*cs.minHalfRTT,
		math.Sqrt(cs.predictionVar))
}
