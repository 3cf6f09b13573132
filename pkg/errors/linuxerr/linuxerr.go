// Copyright 2025 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package linuxerr contains the errno sentinels returned by the signal
// syscalls, as *errors.Error values that compare with ==.
package linuxerr

import (
	"golang.org/x/sys/unix"
	"gvisor.dev/sigcore/pkg/abi/linux/errno"
	"gvisor.dev/sigcore/pkg/errors"
)

// Each error matches the unix.Errno of the same value under errors.Is, e.g.
// errors.Is(EPERM, unix.EPERM) is true.
var (
	EPERM  = errors.New(errno.EPERM, "operation not permitted")
	ESRCH  = errors.New(errno.ESRCH, "no such process")
	EINTR  = errors.New(errno.EINTR, "interrupted system call")
	EAGAIN = errors.New(errno.EAGAIN, "try again")
	ENOMEM = errors.New(errno.ENOMEM, "out of memory")
	EFAULT = errors.New(errno.EFAULT, "bad address")
	EINVAL = errors.New(errno.EINVAL, "invalid argument")
	ENOSYS = errors.New(errno.ENOSYS, "invalid system call number")
)

var errorsByErrno = map[errno.Errno]*errors.Error{
	errno.EPERM:  EPERM,
	errno.ESRCH:  ESRCH,
	errno.EINTR:  EINTR,
	errno.EAGAIN: EAGAIN,
	errno.ENOMEM: ENOMEM,
	errno.EFAULT: EFAULT,
	errno.EINVAL: EINVAL,
	errno.ENOSYS: ENOSYS,
}

// ErrorFromUnix returns a linuxerr from a unix.Errno. Errno values without a
// sentinel here are returned unchanged.
func ErrorFromUnix(err unix.Errno) error {
	if err == unix.Errno(0) {
		return nil
	}
	if e, ok := errorsByErrno[errno.Errno(err)]; ok {
		return e
	}
	return err
}
