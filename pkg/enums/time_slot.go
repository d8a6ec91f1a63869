package enums

import "fmt"

// TimeSlot is one of the fixed delivery windows offered at checkout.
type TimeSlot string

const (
	TimeSlotMorning   TimeSlot = "9:00-12:00"
	TimeSlotNoon      TimeSlot = "12:00-15:00"
	TimeSlotAfternoon TimeSlot = "15:00-18:00"
	TimeSlotEvening   TimeSlot = "18:00-21:00"
)

var validTimeSlots = []TimeSlot{
	TimeSlotMorning,
	TimeSlotNoon,
	TimeSlotAfternoon,
	TimeSlotEvening,
}

// AllTimeSlots returns the configured delivery windows in display order.
func AllTimeSlots() []TimeSlot {
	return append([]TimeSlot(nil), validTimeSlots...)
}

// String implements fmt.Stringer.
func (t TimeSlot) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TimeSlot.
func (t TimeSlot) IsValid() bool {
	for _, candidate := range validTimeSlots {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTimeSlot converts raw input into a TimeSlot.
func ParseTimeSlot(value string) (TimeSlot, error) {
	for _, candidate := range validTimeSlots {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid delivery time slot %q", value)
}
