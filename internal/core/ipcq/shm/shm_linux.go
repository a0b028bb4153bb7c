//go:build linux

package shm

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func allocate(name string, size int) (*Buffer, error) {
	fd, err := unix.MemfdCreate(name, unix.MFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("memfd_create: %w", err)
	}
	if err = unix.Ftruncate(fd, int64(size)); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("ftruncate: %w", err)
	}
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("mmap: %w", err)
	}
	return &Buffer{name: name, data: data, fd: fd}, nil
}

func release(b *Buffer) error {
	errUnmap := unix.Munmap(b.data)
	errClose := unix.Close(b.fd)
	if errUnmap != nil {
		return errUnmap
	}
	return errClose
}
