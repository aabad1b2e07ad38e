package pcibus

import "errors"

var (
	// ErrOutOfResources covers both an exhausted node budget and an
	// allocator that cannot satisfy a pool.
	ErrOutOfResources = errors.New("out of resources")

	ErrSecondaryBus      = errors.New("cannot read secondary bus number")
	ErrUnsupportedHeader = errors.New("unsupported header type")
	ErrOutOfBusNumbers   = errors.New("bus numbers exhausted")
	ErrAddressOverflow   = errors.New("address does not fit the register")
	ErrNotRootBridge     = errors.New("enumeration must start at a root bridge")
	ErrUnknownBarType    = errors.New("unknown bar type")
	ErrUnknownMode       = errors.New("unknown enumeration mode")
	ErrUnknownLegacyIO   = errors.New("unknown legacy I/O policy")
	ErrUnknownDecode     = errors.New("unknown decode capability")
	ErrNoAllocator       = errors.New("no resource allocator")
)
