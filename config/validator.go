package config

import (
	"errors"
	"fmt"

	"github.com/bobuhiro11/gopcibus/logging"
	"github.com/bobuhiro11/gopcibus/pci"
	"github.com/bobuhiro11/gopcibus/pcibus"
)

// Validate reports every problem it finds, joined, wrapped in
// ErrInvalidConfig.
func Validate(cfg *Config) error {
	var errs []error

	check := func(field string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
		}
	}

	_, err := logging.ParseLevel(cfg.LogLevel)
	check("log_level", err)

	_, err = pcibus.ParseMode(cfg.Mode)
	check("mode", err)

	_, err = pcibus.ParseLegacyIO(cfg.LegacyIO)
	check("legacy_io", err)

	if a := uint64(cfg.BridgeIOAlignment); a&(a+1) != 0 {
		check("bridge_io_alignment", fmt.Errorf("%#x is not a power of two minus one", a))
	}

	if cfg.MaxResources < 0 {
		check("max_resources", fmt.Errorf("%d is negative", cfg.MaxResources))
	}

	_, err = cfg.rootDecodes()
	check("root.decodes", err)

	_, err = cfg.Windows()
	check("root.windows", err)

	_, err = cfg.Overrides()
	check("incompatible", err)

	_, err = cfg.PaddingTable()
	check("padding", err)

	_, err = cfg.Functions()
	check("topology", err)

	if len(errs) == 0 {
		return nil
	}

	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

func checkPowerOfTwo(v uint64) error {
	if v == 0 || v&(v-1) != 0 {
		return fmt.Errorf("%#x is not a power of two", v)
	}

	return nil
}

func parseAddresses(fs []Function) (map[pci.Address]bool, error) {
	seen := map[pci.Address]bool{}

	for _, f := range fs {
		a, err := pci.ParseAddress(f.Address)
		if err != nil {
			return nil, err
		}

		if seen[a] {
			return nil, fmt.Errorf("%v listed twice", a)
		}

		seen[a] = true
	}

	return seen, nil
}
