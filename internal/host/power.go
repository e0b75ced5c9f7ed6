package host

// StaticPower reports a fixed battery level, standing in for a real
// hardware fuel gauge that no desktop host exposes the same way the
// handheld's firmware does.
type StaticPower struct {
	Percent int32
}

func (p StaticPower) BatteryPercent() int32 {
	return p.Percent
}
