package config

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseSize parses a size string as number[gGmMkK]. The multiplier is optional,
// and if not set, the unit passed in is used. The number can be any base and
// size.
func ParseSize(s, unit string) (uint64, error) {
	sz := strings.TrimRight(s, "gGmMkK")
	if len(sz) == 0 {
		return 0, fmt.Errorf("%q:can't parse as num[gGmMkK]:%w", s, strconv.ErrSyntax)
	}

	amt, err := strconv.ParseUint(sz, 0, 64)
	if err != nil {
		return 0, err
	}

	if len(s) > len(sz) {
		unit = s[len(sz):]
	}

	switch unit {
	case "G", "g":
		return amt << 30, nil
	case "M", "m":
		return amt << 20, nil
	case "K", "k":
		return amt << 10, nil
	case "":
		return amt, nil
	}

	return 0, fmt.Errorf("can not parse %q as num[gGmMkK]:%w", s, strconv.ErrSyntax)
}

// Size is a byte count or address written as number[gGmMkK].
type Size uint64

func (s *Size) UnmarshalYAML(n *yaml.Node) error {
	v, err := ParseSize(strings.TrimSpace(n.Value), "")
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}

	*s = Size(v)

	return nil
}

func (s Size) MarshalYAML() (interface{}, error) {
	return fmt.Sprintf("%#x", uint64(s)), nil
}
