//go:build unix

package arena

import (
	"fmt"

	"golang.org/x/sys/unix"
)

type region struct {
	mem []byte
}

func mapRegion(size int) (region, error) {
	page := unix.Getpagesize()
	size = (size + page - 1) / page * page

	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return region{}, fmt.Errorf("arena: mmap %d bytes: %w", size, err)
	}
	return region{mem: mem}, nil
}

func (r region) bytes() []byte { return r.mem }

func (r region) protect(readOnly bool) error {
	prot := unix.PROT_READ | unix.PROT_WRITE
	if readOnly {
		prot = unix.PROT_READ
	}
	return unix.Mprotect(r.mem, prot)
}

func (r region) unmap() error {
	if r.mem == nil {
		return nil
	}
	return unix.Munmap(r.mem)
}
