// Package motion computes trapezoidal move profiles and keeps the ordered
// arena of timed segments handed to the step executor.
package motion

import "math"

// Profile holds the phase timings of a single relative move.
type Profile struct {
	AccelT  float64 // seconds spent accelerating
	CruiseT float64 // seconds at CruiseV
	DecelT  float64 // seconds spent decelerating
	CruiseV float64 // peak velocity, below the requested velocity for triangles
	AxisR   float64 // +1 or -1, the direction of travel

	// Triangular is set when the move is too short to reach the
	// requested velocity.
	Triangular bool
}

// Duration returns the total move time.
func (p Profile) Duration() float64 {
	return p.AccelT + p.CruiseT + p.DecelT
}

// Distance reconstructs the travelled distance from the phase timings.
func (p Profile) Distance() float64 {
	return 0.5*p.CruiseV*p.AccelT + p.CruiseV*p.CruiseT + 0.5*p.CruiseV*p.DecelT
}

// ComputeProfile returns the timings for moving distance at velocity with
// the given acceleration. An acceleration of zero yields a single cruise
// phase. Callers must reject velocity <= 0 and accel < 0 beforehand.
func ComputeProfile(distance, velocity, accel float64) Profile {
	axisR, accelT, cruiseT, cruiseV := CalcMoveTime(distance, velocity, accel)
	return Profile{
		AccelT:     accelT,
		CruiseT:    cruiseT,
		DecelT:     accelT,
		CruiseV:    cruiseV,
		AxisR:      axisR,
		Triangular: accel > 0 && distance != 0 && velocity*velocity > math.Abs(distance)*accel,
	}
}

// CalcMoveTime returns the direction, acceleration time, cruise time and
// cruise velocity of a move that decelerates as long as it accelerates.
func CalcMoveTime(dist, speed, accel float64) (axisR, accelT, cruiseT, cruiseV float64) {
	axisR = 1.0
	if dist < 0 {
		axisR = -1.0
		dist = -dist
	}
	if accel == 0 || dist == 0 {
		return axisR, 0.0, dist / speed, speed
	}
	maxCruiseV2 := dist * accel
	if speed*speed > maxCruiseV2 {
		// Too short to reach speed
		peak := math.Sqrt(maxCruiseV2)
		return axisR, peak / accel, 0.0, peak
	}
	accelT = speed / accel
	cruiseT = math.Max(0, (dist-accelT*speed)/speed)
	return axisR, accelT, cruiseT, speed
}
