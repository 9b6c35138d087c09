//go:build linux

package transport

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func peerString(fd int) string {
	cred, err := unix.GetsockoptUcred(fd, unix.SOL_SOCKET, unix.SO_PEERCRED)
	if err != nil {
		return "UNIX socket client"
	}
	return fmt.Sprintf("UNIX socket client pid=%d uid=%d", cred.Pid, cred.Uid)
}
