// Package dict maps decoded blackbox field names to display metadata:
// friendly names, units and the default graph groups a viewer seeds with.
package dict

import (
	"fmt"
	"regexp"
	"strings"
)

// Unit identifies how a raw field value should be presented.
type Unit string

const (
	UnitRaw              Unit = "raw"
	UnitMicroseconds     Unit = "us"
	UnitDegreesPerSecond Unit = "deg/s"
	UnitGs               Unit = "g"
	UnitMillivolts       Unit = "mV"
	UnitMilliamps        Unit = "mA"
	UnitMotorOutput      Unit = "motor"
	UnitFlags            Unit = "flags"
)

// Entry describes one field for presentation.
type Entry struct {
	Pattern string
	Name    string
	Unit    Unit
	Group   string
}

// Store resolves field names against exact entries first, then pattern
// entries (field families such as motor[0]..motor[7]).
type Store struct {
	exact    map[string]Entry
	patterns []patternEntry
}

type patternEntry struct {
	re    *regexp.Regexp
	entry Entry
}

// JSONFile is the overlay document format: a flat list of entries whose
// Pattern is either a literal field name or a regular expression enclosed in
// slashes.
type JSONFile struct {
	Fields []JSONEntry `json:"fields"`
}

type JSONEntry struct {
	Pattern string `json:"pattern"`
	Name    string `json:"name"`
	Unit    string `json:"unit,omitempty"`
	Group   string `json:"group,omitempty"`
}

// FromJSON validates and indexes an overlay document.
func FromJSON(file JSONFile) (*Store, error) {
	store := &Store{exact: make(map[string]Entry)}
	for i, raw := range file.Fields {
		pattern := strings.TrimSpace(raw.Pattern)
		if pattern == "" {
			return nil, fmt.Errorf("fields[%d]: empty pattern", i)
		}
		entry := Entry{
			Pattern: pattern,
			Name:    strings.TrimSpace(raw.Name),
			Unit:    Unit(strings.TrimSpace(raw.Unit)),
			Group:   strings.TrimSpace(raw.Group),
		}
		if entry.Unit == "" {
			entry.Unit = UnitRaw
		}
		if strings.HasPrefix(pattern, "/") && strings.HasSuffix(pattern, "/") && len(pattern) > 2 {
			re, err := regexp.Compile("^" + pattern[1:len(pattern)-1] + "$")
			if err != nil {
				return nil, fmt.Errorf("fields[%d]: %w", i, err)
			}
			store.patterns = append(store.patterns, patternEntry{re: re, entry: entry})
			continue
		}
		if _, exists := store.exact[pattern]; exists {
			return nil, fmt.Errorf("fields[%d]: duplicate pattern %q", i, pattern)
		}
		store.exact[pattern] = entry
	}
	return store, nil
}

// Lookup resolves a field name, falling back to a raw entry named after the
// field itself.
func (s *Store) Lookup(field string) Entry {
	if s != nil {
		if entry, ok := s.exact[field]; ok {
			return entry
		}
		for _, p := range s.patterns {
			if p.re.MatchString(field) {
				entry := p.entry
				if entry.Name == "" {
					entry.Name = field
				}
				return entry
			}
		}
	}
	return Entry{Pattern: field, Name: field, Unit: UnitRaw}
}

// Merge overlays other on top of s, other winning ties.
func (s *Store) Merge(other *Store) *Store {
	if other == nil {
		return s
	}
	merged := &Store{exact: make(map[string]Entry)}
	for k, v := range s.exact {
		merged.exact[k] = v
	}
	for k, v := range other.exact {
		merged.exact[k] = v
	}
	merged.patterns = append(append([]patternEntry(nil), other.patterns...), s.patterns...)
	return merged
}

// Default returns the built-in dictionary covering the standard field set.
func Default() *Store {
	store, err := FromJSON(builtin)
	if err != nil {
		panic(err)
	}
	return store
}

var builtin = JSONFile{Fields: []JSONEntry{
	{Pattern: "loopIteration", Name: "Loop iteration"},
	{Pattern: "time", Name: "Time", Unit: string(UnitMicroseconds)},
	{Pattern: `/axisP\[\d\]/`, Name: "PID P", Group: "pid"},
	{Pattern: `/axisI\[\d\]/`, Name: "PID I", Group: "pid"},
	{Pattern: `/axisD\[\d\]/`, Name: "PID D", Group: "pid"},
	{Pattern: `/axisF\[\d\]/`, Name: "PID Feedforward", Group: "pid"},
	{Pattern: `/axisSum\[\d\]/`, Name: "PID Sum", Group: "pid"},
	{Pattern: `/axisError\[\d\]/`, Name: "PID Error", Unit: string(UnitDegreesPerSecond), Group: "pid"},
	{Pattern: `/rcCommand\[\d\]/`, Name: "RC Command", Group: "rc"},
	{Pattern: `/rcCommands\[\d\]/`, Name: "RC Command (scaled)", Unit: string(UnitDegreesPerSecond), Group: "rc"},
	{Pattern: `/setpoint\[\d\]/`, Name: "Setpoint", Unit: string(UnitDegreesPerSecond), Group: "rc"},
	{Pattern: `/gyroADC\[\d\]/`, Name: "Gyro", Unit: string(UnitDegreesPerSecond), Group: "gyro"},
	{Pattern: `/accSmooth\[\d\]/`, Name: "Accel", Unit: string(UnitGs), Group: "acc"},
	{Pattern: `/motor\[\d\]/`, Name: "Motor", Unit: string(UnitMotorOutput), Group: "motors"},
	{Pattern: `/motorLegacy\[\d\]/`, Name: "Motor (legacy)", Unit: string(UnitMotorOutput), Group: "motors"},
	{Pattern: `/debug\[\d\]/`, Name: "Debug", Group: "debug"},
	{Pattern: "vbatLatest", Name: "Battery voltage", Unit: string(UnitMillivolts), Group: "battery"},
	{Pattern: "amperageLatest", Name: "Current draw", Unit: string(UnitMilliamps), Group: "battery"},
	{Pattern: "rssi", Name: "RSSI", Group: "rc"},
	{Pattern: "flightModeFlags", Name: "Flight mode", Unit: string(UnitFlags), Group: "flags"},
	{Pattern: "stateFlags", Name: "State", Unit: string(UnitFlags), Group: "flags"},
	{Pattern: "failsafePhase", Name: "Failsafe phase", Unit: string(UnitFlags), Group: "flags"},
}}

// DefaultGraphGroups returns the curve groups a viewer opens with, keyed by
// group name, each listing its fields in the order given, restricted to fields
// that exist in the log.
func DefaultGraphGroups(store *Store, fieldNames []string) map[string][]string {
	groups := make(map[string][]string)
	for _, field := range fieldNames {
		entry := store.Lookup(field)
		if entry.Group == "" {
			continue
		}
		groups[entry.Group] = append(groups[entry.Group], field)
	}
	return groups
}
