package config

import (
	"strings"
)

// Section name prefixes understood by the host.
const (
	BufferStepperPrefix = "buffer_stepper "
	HostSection         = "buffer_stepper_host"
	DefaultMCU          = "EBB"
)

// StepperConfig holds the motor options of a buffer stepper section.
type StepperConfig struct {
	StepPin              Pin
	DirPin               Pin
	EnablePin            *Pin
	Microsteps           int
	RotationDistance     float64 // mm per full rotation
	FullStepsPerRotation int
}

// StepsPerMM returns the number of microsteps per millimeter of travel.
func (s StepperConfig) StepsPerMM() float64 {
	return float64(s.FullStepsPerRotation*s.Microsteps) / s.RotationDistance
}

// BufferStepperConfig is the decoded form of a [buffer_stepper NAME] section.
type BufferStepperConfig struct {
	Name       string
	MCU        string
	EndstopPin Pin
	Stepper    StepperConfig

	Velocity        float64
	Accel           float64
	PushLength      float64
	BufferTimeStart float64
	EventDelay      float64
	StartupDelay    float64
	RearmOnTrigger  bool
	Debug           bool
}

// MCUConfig describes a controller section, [mcu] or [mcu NAME].
type MCUConfig struct {
	Name         string
	Serial       string
	ClockFreq    float64
	FlushLatency float64 // seconds the controller takes to acknowledge a flush
}

// HostConfig is the decoded form of the optional [buffer_stepper_host] section.
type HostConfig struct {
	Sensor       string // gpio, serial or manual
	GPIOChip     string
	GPIOLine     int
	SerialDevice string
	SerialBaud   int
	Listen       string
	HistoryDB    string
}

// ParseBufferStepper decodes a [buffer_stepper NAME] section. The named
// controller must have its own [mcu NAME] section.
func ParseBufferStepper(cfg *Config, sec *Section) (*BufferStepperConfig, error) {
	name := sec.Suffix()
	if name == "" {
		return nil, NewConfigError(sec.GetName(), "", "buffer_stepper section requires a name")
	}
	bs := &BufferStepperConfig{Name: name}

	if !sec.HasOption("endstop_pin") {
		return nil, ErrMissingOption("buffer_stepper '"+name+"'", "endstop_pin")
	}
	var err error
	if bs.EndstopPin, err = sec.GetPin("endstop_pin"); err != nil {
		return nil, err
	}

	if bs.MCU, err = sec.Get("mcu", DefaultMCU); err != nil {
		return nil, err
	}
	if !cfg.HasSection(mcuSectionName(bs.MCU)) {
		return nil, NewConfigError(sec.GetName(), "mcu",
			"buffer_stepper requires a dedicated controller, no ["+mcuSectionName(bs.MCU)+"] section")
	}
	if chip := bs.EndstopPin.Chip; chip != "mcu" && !cfg.HasSection(mcuSectionName(chip)) {
		return nil, NewConfigError(sec.GetName(), "endstop_pin", "unknown controller '"+chip+"'")
	}

	if err := parseStepper(sec, &bs.Stepper); err != nil {
		return nil, err
	}

	floats := []struct {
		option   string
		bounds   FloatBounds
		fallback float64
		dst      *float64
	}{
		{"velocity", Above(0), 5, &bs.Velocity},
		{"accel", Min(0), 0, &bs.Accel},
		{"push_length", Min(1), 15, &bs.PushLength},
		{"buffer_time_start", Above(0), 0.250, &bs.BufferTimeStart},
		{"event_delay", Above(0), 3, &bs.EventDelay},
		{"startup_delay", Above(0), 0.5, &bs.StartupDelay},
	}
	for _, f := range floats {
		if *f.dst, err = sec.GetFloatWithBounds(f.option, f.bounds, f.fallback); err != nil {
			return nil, err
		}
	}

	if bs.RearmOnTrigger, err = sec.GetBool("rearm_on_trigger", false); err != nil {
		return nil, err
	}
	if bs.Debug, err = sec.GetBool("debug", false); err != nil {
		return nil, err
	}
	return bs, nil
}

func parseStepper(sec *Section, st *StepperConfig) error {
	var err error
	if st.StepPin, err = sec.GetPin("step_pin"); err != nil {
		return err
	}
	if st.DirPin, err = sec.GetPin("dir_pin"); err != nil {
		return err
	}
	if sec.HasOption("enable_pin") {
		pin, err := sec.GetPin("enable_pin")
		if err != nil {
			return err
		}
		st.EnablePin = &pin
	}
	if st.RotationDistance, err = sec.GetFloatWithBounds("rotation_distance", Above(0)); err != nil {
		return err
	}
	if st.Microsteps, err = sec.GetInt("microsteps", 16); err != nil {
		return err
	}
	if st.FullStepsPerRotation, err = sec.GetInt("full_steps_per_rotation", 200); err != nil {
		return err
	}
	if st.Microsteps <= 0 {
		return ErrOutOfRange(sec.GetName(), "microsteps", float64(st.Microsteps), "must be above 0")
	}
	if st.FullStepsPerRotation <= 0 || st.FullStepsPerRotation%4 != 0 {
		return ErrOutOfRange(sec.GetName(), "full_steps_per_rotation", float64(st.FullStepsPerRotation),
			"must be a positive multiple of 4")
	}
	return nil
}

// LoadBufferSteppers decodes every [buffer_stepper NAME] section in order.
func LoadBufferSteppers(cfg *Config) ([]*BufferStepperConfig, error) {
	var result []*BufferStepperConfig
	for _, sec := range cfg.GetPrefixSections(BufferStepperPrefix) {
		bs, err := ParseBufferStepper(cfg, sec)
		if err != nil {
			return nil, err
		}
		result = append(result, bs)
	}
	return result, nil
}

func mcuSectionName(name string) string {
	if name == "" || name == "mcu" {
		return "mcu"
	}
	return "mcu " + name
}

// ParseMCU decodes the controller section for name.
func ParseMCU(cfg *Config, name string) (*MCUConfig, error) {
	sec, err := cfg.GetSection(mcuSectionName(name))
	if err != nil {
		return nil, err
	}
	m := &MCUConfig{Name: name}
	if m.Serial, err = sec.Get("serial", ""); err != nil {
		return nil, err
	}
	if _, err = sec.Get("restart_method", ""); err != nil {
		return nil, err
	}
	if m.ClockFreq, err = sec.GetFloatWithBounds("clock_freq", Above(0), 64000000); err != nil {
		return nil, err
	}
	if m.FlushLatency, err = sec.GetFloatWithBounds("flush_latency", Min(0), 0.002); err != nil {
		return nil, err
	}
	return m, nil
}

// LoadMCUs decodes the [mcu] and every [mcu NAME] section.
func LoadMCUs(cfg *Config) (map[string]*MCUConfig, error) {
	result := make(map[string]*MCUConfig)
	for _, name := range cfg.GetSectionNames() {
		if name != "mcu" && !strings.HasPrefix(name, "mcu ") {
			continue
		}
		short := strings.TrimSpace(strings.TrimPrefix(name, "mcu"))
		if short == "" {
			short = "mcu"
		}
		m, err := ParseMCU(cfg, short)
		if err != nil {
			return nil, err
		}
		result[short] = m
	}
	return result, nil
}

// ParseHost decodes [buffer_stepper_host]. A missing section yields defaults.
func ParseHost(cfg *Config) (*HostConfig, error) {
	sec := cfg.GetSectionOptional(HostSection)
	if sec == nil {
		sec = newSection(HostSection, nil)
	}
	h := &HostConfig{}
	var err error
	if h.Sensor, err = sec.GetChoice("sensor", []string{"manual", "gpio", "serial"}, "manual"); err != nil {
		return nil, err
	}
	if h.GPIOChip, err = sec.Get("gpio_chip", "gpiochip0"); err != nil {
		return nil, err
	}
	if h.GPIOLine, err = sec.GetInt("gpio_line", -1); err != nil {
		return nil, err
	}
	if h.SerialDevice, err = sec.Get("serial_device", ""); err != nil {
		return nil, err
	}
	if h.SerialBaud, err = sec.GetInt("serial_baud", 115200); err != nil {
		return nil, err
	}
	if h.Listen, err = sec.Get("listen", ":7130"); err != nil {
		return nil, err
	}
	if h.HistoryDB, err = sec.Get("history_db", ""); err != nil {
		return nil, err
	}

	switch h.Sensor {
	case "gpio":
		if h.GPIOLine < 0 {
			return nil, ErrMissingOption(HostSection, "gpio_line")
		}
	case "serial":
		if h.SerialDevice == "" {
			return nil, ErrMissingOption(HostSection, "serial_device")
		}
	}
	return h, nil
}
