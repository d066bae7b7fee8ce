// Package source defines the closed set of upstream transit systems that
// every realtime and static entity in this system is scoped to.
package source

import "fmt"

// Source identifies the upstream transit agency/feed family a row belongs
// to. Every unique key and foreign key in the data model is
// (natural-key, Source)-scoped.
type Source int

const (
	MtaSubway Source = iota
	MtaBus
)

func (s Source) String() string {
	switch s {
	case MtaSubway:
		return "mta_subway"
	case MtaBus:
		return "mta_bus"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

// All is the closed enumeration of sources the engine runs adapters for.
func All() []Source {
	return []Source{MtaSubway, MtaBus}
}

func Parse(s string) (Source, error) {
	switch s {
	case "mta_subway":
		return MtaSubway, nil
	case "mta_bus":
		return MtaBus, nil
	default:
		return 0, fmt.Errorf("unknown source %q", s)
	}
}

func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Source) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
