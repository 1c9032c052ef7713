//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package evcore

import "golang.org/x/sys/unix"

// createWakeFD opens a non-blocking self-pipe, grounded on eventloop's
// Darwin createWakeFd (eventloop/wakeup_darwin.go).
func createWakeFD() (int, int, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return -1, -1, err
	}
	return fds[0], fds[1], nil
}

func writeWakeByte(writeFD int) {
	if writeFD < 0 {
		return
	}
	_, _ = unix.Write(writeFD, []byte{1})
}

func drainWakeFD(readFD int) {
	if readFD < 0 {
		return
	}
	var buf [128]byte
	for {
		_, err := unix.Read(readFD, buf[:])
		if err != nil {
			return
		}
	}
}

func closeWakeFD(readFD, writeFD int) error {
	var err error
	if readFD >= 0 {
		err = unix.Close(readFD)
	}
	if writeFD >= 0 && writeFD != readFD {
		if e := unix.Close(writeFD); e != nil && err == nil {
			err = e
		}
	}
	return err
}
