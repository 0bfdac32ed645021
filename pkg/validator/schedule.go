package validator

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrInvalidTime indicates a departure time that is not 24-hour HH:MM
	ErrInvalidTime = errors.New("time must be in HH:MM 24-hour format")

	// ErrInvalidBusNumber indicates a registration number with unexpected characters
	ErrInvalidBusNumber = errors.New("bus number must be 4-20 letters, digits, spaces or dashes")
)

var (
	clockRegex     = regexp.MustCompile(`^([0-1]?[0-9]|2[0-3]):([0-5][0-9])$`)
	busNumberRegex = regexp.MustCompile(`^[A-Z0-9][A-Z0-9 -]{2,18}[A-Z0-9]$`)
)

// ParseClock parses a departure time such as "08:00" or "6:30"
func ParseClock(value string) (hour, minute int, err error) {
	m := clockRegex.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return 0, 0, ErrInvalidTime
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	return hour, minute, nil
}

// NormalizeBusNumber upper-cases and trims a registration number and checks its shape
func NormalizeBusNumber(value string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	if !busNumberRegex.MatchString(normalized) {
		return "", ErrInvalidBusNumber
	}
	return normalized, nil
}
