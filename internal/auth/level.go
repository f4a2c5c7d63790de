package auth

import (
	"fmt"
	"sort"
)

// Level is an authorization rank. Higher levels include every lower one.
type Level int

const (
	Public Level = 0
	User   Level = 10
	User2  Level = 11
	User3  Level = 12
	User4  Level = 13
	Admin  Level = 20
	Admin2 Level = 21
	Admin3 Level = 22
	Admin4 Level = 23
	God    Level = 99
)

var levelNames = map[Level]string{
	Public: "PUBLIC",
	User:   "USER",
	User2:  "USER2",
	User3:  "USER3",
	User4:  "USER4",
	Admin:  "ADMIN",
	Admin2: "ADMIN2",
	Admin3: "ADMIN3",
	Admin4: "ADMIN4",
	God:    "GOD",
}

var levelsByName = func() map[string]Level {
	m := make(map[string]Level, len(levelNames))
	for l, name := range levelNames {
		m[name] = l
	}
	return m
}()

// LevelNames returns the enum value names in rank order.
func LevelNames() []string {
	levels := make([]Level, 0, len(levelNames))
	for l := range levelNames {
		levels = append(levels, l)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i] < levels[j] })
	names := make([]string, len(levels))
	for i, l := range levels {
		names[i] = levelNames[l]
	}
	return names
}

// ParseLevel parses an AuthorizationLevel enum value.
func ParseLevel(s string) (Level, error) {
	if l, ok := levelsByName[s]; ok {
		return l, nil
	}
	return Public, fmt.Errorf("unknown authorization level %q", s)
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// Valid reports whether l is one of the named levels.
func (l Level) Valid() bool {
	_, ok := levelNames[l]
	return ok
}

// Satisfies reports whether a requester at l may access something that
// requires level required.
func (l Level) Satisfies(required Level) bool { return l >= required }

func (l Level) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid authorization level %d", int(l))
	}
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(b []byte) error {
	v, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}
