//go:build unix && !linux

package transport

func peerString(int) string {
	return "UNIX socket client"
}
