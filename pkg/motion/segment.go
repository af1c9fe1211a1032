package motion

// Segment is a timed move as appended to the queue. Values are immutable
// once appended.
type Segment struct {
	ID        string  `json:"id"`
	StartTime float64 `json:"start_time"`
	AccelT    float64 `json:"accel_t"`
	CruiseT   float64 `json:"cruise_t"`
	DecelT    float64 `json:"decel_t"`
	StartPos  float64 `json:"start_pos"`
	CruiseV   float64 `json:"cruise_v"`
	Accel     float64 `json:"accel"`
	AxisR     float64 `json:"axis_r"`
}

// NewSegment places profile p at startTime.
func NewSegment(id string, startTime, startPos float64, p Profile, accel float64) Segment {
	return Segment{
		ID:        id,
		StartTime: startTime,
		AccelT:    p.AccelT,
		CruiseT:   p.CruiseT,
		DecelT:    p.DecelT,
		StartPos:  startPos,
		CruiseV:   p.CruiseV,
		Accel:     accel,
		AxisR:     p.AxisR,
	}
}

// Duration returns accel + cruise + decel time.
func (s Segment) Duration() float64 {
	return s.AccelT + s.CruiseT + s.DecelT
}

// EndTime returns the print time at which the segment completes.
func (s Segment) EndTime() float64 {
	return s.StartTime + s.Duration()
}

// Distance returns the unsigned length of the segment.
func (s Segment) Distance() float64 {
	return Profile{AccelT: s.AccelT, CruiseT: s.CruiseT, DecelT: s.DecelT, CruiseV: s.CruiseV}.Distance()
}

// PositionAt returns the commanded position at print time t.
func (s Segment) PositionAt(t float64) float64 {
	move := t - s.StartTime
	if move <= 0 {
		return s.StartPos
	}
	var d float64
	switch {
	case move < s.AccelT:
		a := s.CruiseV / s.AccelT
		d = 0.5 * a * move * move
	case move < s.AccelT+s.CruiseT:
		d = 0.5*s.CruiseV*s.AccelT + s.CruiseV*(move-s.AccelT)
	case move < s.Duration():
		left := s.Duration() - move
		a := s.CruiseV / s.DecelT
		d = s.Distance() - 0.5*a*left*left
	default:
		d = s.Distance()
	}
	return s.StartPos + s.AxisR*d
}
