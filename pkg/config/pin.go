package config

import (
	"strings"
)

// Pin represents a parsed pin specification.
type Pin struct {
	Name   string // Pin name (e.g., "PB6", "gpio25")
	Chip   string // Controller name (default: "mcu")
	Invert bool   // Inverted logic (! prefix)
	Pullup int    // Pullup: 1 = up (^), -1 = down (~), 0 = none
}

// FullName returns the pin name including the chip prefix if not "mcu".
func (p Pin) FullName() string {
	if p.Chip != "" && p.Chip != "mcu" {
		return p.Chip + ":" + p.Name
	}
	return p.Name
}

// ParsePin parses a pin specification string.
// Format: [^|~][!][chip:]pin_name
// Examples: "PB6", "!PB6", "^EBB:PB6"
func ParsePin(desc string) (Pin, error) {
	d := strings.TrimSpace(desc)
	if d == "" {
		return Pin{}, NewConfigError("", "", "empty pin specification")
	}

	p := Pin{Chip: "mcu"}
modifiers:
	for len(d) > 0 {
		switch d[0] {
		case '^':
			p.Pullup = 1
		case '~':
			p.Pullup = -1
		case '!':
			p.Invert = !p.Invert
		default:
			break modifiers
		}
		d = strings.TrimSpace(d[1:])
	}
	if idx := strings.Index(d, ":"); idx >= 0 {
		p.Chip = strings.TrimSpace(d[:idx])
		d = strings.TrimSpace(d[idx+1:])
	}
	if d == "" || p.Chip == "" {
		return Pin{}, NewConfigError("", "", "empty pin name in specification: "+desc)
	}
	if strings.ContainsAny(d, "^~!: ") {
		return Pin{}, NewConfigError("", "", "invalid characters in pin name: "+desc)
	}

	p.Name = d
	return p, nil
}

// GetPin returns a required Pin option value from the section.
func (s *Section) GetPin(option string) (Pin, error) {
	v, err := s.Get(option)
	if err != nil {
		return Pin{}, err
	}
	pin, err := ParsePin(v)
	if err != nil {
		return Pin{}, ErrInvalidValue(s.name, option, v, "pin", err)
	}
	return pin, nil
}
