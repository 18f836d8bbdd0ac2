package ioengine

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/Masterminds/semver/v3"
	"golang.org/x/sys/unix"
)

// minKernelVersion is the lowest Linux kernel the epoll backend's use of
// EPOLLEXCLUSIVE-free level-triggered edge handling and accept4's
// SOCK_NONBLOCK|SOCK_CLOEXEC flags is guaranteed to support. Supplemented
// per SPEC_FULL.md's capability gate.
var minKernelVersion = semver.MustParse("3.9.0")

// CheckCapability verifies the running kernel is new enough for the
// Linux backend's assumptions, returning a descriptive error otherwise.
// BSD/Darwin backends have no equivalent version floor and always pass.
func CheckCapability() error {
	if runtime.GOOS != "linux" {
		return nil
	}

	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return Err(Unexpected, err)
	}

	release := unameString(uts.Release)

	v, err := parseKernelVersion(release)
	if err != nil {
		// Anything after the first '-' is already dropped, but some
		// kernels carry other non-semver suffixes (e.g. "5.10.0_custom");
		// failing to parse isn't a reason to refuse to run.
		return nil
	}

	if v.LessThan(minKernelVersion) {
		return fmt.Errorf("sockengine: kernel %s older than required %s", release, minKernelVersion)
	}

	return nil
}

func parseKernelVersion(release string) (*semver.Version, error) {
	fields := strings.SplitN(release, "-", 2)
	return semver.NewVersion(fields[0])
}

// unameString converts a NUL-terminated Utsname field to a string. The
// field's element type is int8 on some architectures and uint8 on
// others, hence the generic constraint rather than a fixed []byte.
func unameString[T ~byte | ~int8](arr [65]T) string {
	b := make([]byte, 0, len(arr))

	for _, c := range arr {
		if c == 0 {
			break
		}

		b = append(b, byte(c))
	}

	return string(b)
}
