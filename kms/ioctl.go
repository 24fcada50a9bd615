// Copyright (c) 2025 Nuthatch Inc
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package kms

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctl request encoding, as in <asm-generic/ioctl.h>
const (
	iocNone  = 0
	iocWrite = 1
	iocRead  = 2

	iocNrBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNrShift   = 0
	iocTypeShift = iocNrShift + iocNrBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits
)

// drmBase is the ioctl type byte of every DRM request ('d').
const drmBase = 0x64

func ioc(dir, typ, nr, size uintptr) uint32 {
	return uint32(dir<<iocDirShift | size<<iocSizeShift | typ<<iocTypeShift | nr<<iocNrShift)
}

func drmIO(nr uintptr) uint32 {
	return ioc(iocNone, drmBase, nr, 0)
}

func drmIOWR(nr, size uintptr) uint32 {
	return ioc(iocRead|iocWrite, drmBase, nr, size)
}

// ioctl issues a DRM ioctl, retrying on EINTR/EAGAIN like libdrm's drmIoctl.
func ioctl(fd int, req uint32, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(arg))
		switch errno {
		case 0:
			return nil
		case unix.EINTR, unix.EAGAIN:
			continue
		default:
			return errno
		}
	}
}
