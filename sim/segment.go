// Package sim emulates a PCI segment: functions with writable-bit masks so
// that BAR sizing, read-only capability nibbles and bridge registers
// behave the way hardware does when an enumerator pokes them.
package sim

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/bobuhiro11/gopcibus/pci"
)

var (
	errSpecInvalid   = errors.New("invalid function description")
	errDuplicateAddr = errors.New("function already present")

	// ErrInjected is returned by accesses matching an injected fault.
	ErrInjected = errors.New("injected config access failure")
)

type fault struct {
	addr   pci.Address
	offset uint16
}

// Segment is one emulated PCI segment (256 buses).
type Segment struct {
	mu        sync.Mutex
	functions map[pci.Address]*function
	probes    map[pci.Address]int
	faults    map[fault]struct{}
}

func New(specs ...FunctionSpec) (*Segment, error) {
	s := &Segment{
		functions: map[pci.Address]*function{},
		probes:    map[pci.Address]int{},
		faults:    map[fault]struct{}{},
	}

	for _, spec := range specs {
		if err := s.Add(spec); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Add plugs a function into the segment.
func (s *Segment) Add(spec FunctionSpec) error {
	if !spec.Address.Valid() {
		return fmt.Errorf("%v: %w", spec.Address, pci.ErrInvalidAddress)
	}

	f, err := newFunction(spec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.functions[spec.Address]; ok {
		return fmt.Errorf("%v: %w", spec.Address, errDuplicateAddr)
	}

	s.functions[spec.Address] = f

	return nil
}

// FailReads makes every read of the register at offset fail.
func (s *Segment) FailReads(addr pci.Address, offset uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.faults[fault{addr: addr, offset: offset}] = struct{}{}
}

// Probes returns how many times the Vendor ID of addr has been read.
func (s *Segment) Probes(addr pci.Address) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.probes[addr]
}

// TotalProbes sums Probes over every address.
func (s *Segment) TotalProbes() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, c := range s.probes {
		n += c
	}

	return n
}

// Dword returns the raw register value, bypassing probe accounting.
func (s *Segment) Dword(addr pci.Address, offset uint16) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.functions[addr]
	if !ok || int(offset)+4 > len(f.cfg) {
		return 0xffffffff
	}

	return binary.LittleEndian.Uint32(f.cfg[offset:])
}

func (s *Segment) ReadConfig(addr pci.Address, offset uint16, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if offset <= pci.VendorIDOffset+1 {
		s.probes[addr]++
	}

	for i := range data {
		if _, ok := s.faults[fault{addr: addr, offset: offset + uint16(i)}]; ok {
			return fmt.Errorf("%v+%#x: %w", addr, offset, ErrInjected)
		}
	}

	f, ok := s.functions[addr]
	if !ok {
		for i := range data {
			data[i] = 0xff
		}

		return nil
	}

	for i := range data {
		data[i] = 0
	}

	if int(offset) < len(f.cfg) {
		f.read(int(offset), data[:min(len(data), len(f.cfg)-int(offset))])
	}

	return nil
}

func (s *Segment) WriteConfig(addr pci.Address, offset uint16, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.functions[addr]
	if !ok || int(offset) >= len(f.cfg) {
		return nil
	}

	f.write(int(offset), data[:min(len(data), len(f.cfg)-int(offset))])

	return nil
}
