//go:build linux

package evcore

import "golang.org/x/sys/unix"

// createWakeFD opens a single non-blocking eventfd serving as both the
// read and write end, grounded on the
// teacher's Linux createWakeFd (eventloop/wakeup_linux.go).
func createWakeFD() (int, int, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return -1, -1, err
	}
	return fd, fd, nil
}

func writeWakeByte(writeFD int) {
	if writeFD < 0 {
		return
	}
	var buf [8]byte
	buf[7] = 1
	_, _ = unix.Write(writeFD, buf[:])
}

func drainWakeFD(readFD int) {
	if readFD < 0 {
		return
	}
	var buf [8]byte
	for {
		_, err := unix.Read(readFD, buf[:])
		if err != nil {
			return
		}
	}
}

func closeWakeFD(readFD, writeFD int) error {
	if readFD >= 0 {
		return unix.Close(readFD)
	}
	return nil
}
