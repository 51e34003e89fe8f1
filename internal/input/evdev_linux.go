//go:build linux

package input

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"unsafe"

	"golang.org/x/sys/unix"
)

// _IOC из asm-generic/ioctl.h.
func ioc(dir, typ, nr, size uintptr) uintptr {
	return dir<<30 | size<<16 | typ<<8 | nr
}

const (
	iocWrite = 1
	iocRead  = 2
)

func eviocgname(size int) uintptr { return ioc(iocRead, 'E', 0x06, uintptr(size)) }
func eviocgbit(ev, size int) uintptr { return ioc(iocRead, 'E', 0x20+uintptr(ev), uintptr(size)) }

var eviocgrab = ioc(iocWrite, 'E', 0x90, unsafe.Sizeof(int32(0)))

func ioctlBuf(fd uintptr, req uintptr, buf []byte) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(unsafe.Pointer(&buf[0])))
	if errno != 0 {
		return errno
	}
	return nil
}

func deviceName(f *os.File) string {
	buf := make([]byte, 256)
	if err := ioctlBuf(f.Fd(), eviocgname(len(buf)), buf); err != nil {
		return ""
	}
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return string(buf)
}

// hasAnyKey проверяет битовую карту EV_KEY устройства.
func hasAnyKey(f *os.File, codes []uint16) bool {
	bits := make([]byte, keyMax/8+1)
	if err := ioctlBuf(f.Fd(), eviocgbit(evKey, len(bits)), bits); err != nil {
		return false
	}
	for _, c := range codes {
		if bits[c/8]&(1<<(c%8)) != 0 {
			return true
		}
	}
	return false
}

func openPath(path string, grab bool) (*device, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	d := &device{path: path, name: deviceName(f), f: f}
	if grab {
		if err := unix.IoctlSetInt(int(f.Fd()), uint(eviocgrab), 1); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("grab %s: %w", path, err)
		}
	}
	return d, nil
}

// openDevice открывает заданное устройство или ищет первое подходящее
// среди /dev/input/event*.
func openDevice(cfg Config) (*device, error) {
	if cfg.Device != "" {
		return openPath(cfg.Device, cfg.Grab)
	}

	paths, err := filepath.Glob("/dev/input/event*")
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	for _, p := range paths {
		f, err := os.OpenFile(p, os.O_RDONLY, 0)
		if err != nil {
			continue
		}
		name := deviceName(f)
		ok := !excluded(name, cfg.Exclude) && hasAnyKey(f, candidateKeys)
		_ = f.Close()
		if ok {
			return openPath(p, cfg.Grab)
		}
	}
	return nil, ErrNoDevice
}
