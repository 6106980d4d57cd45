// Copyright 2024 Google Inc. All Rights Reserved.
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

// Package lfserrors is the error taxonomy every engine component returns
// through: transport/integrity/availability failures the engine can recover
// from locally, permission/semantic errors translated to a POSIX errno at
// the boundary, and two fatal session kinds. It follows the teacher's own
// choice of typed, wrapped errors over sentinel values (gcs.PreconditionError,
// gcs.NotFoundError) generalized to one *Error type carrying a Kind instead
// of one Go type per kind.
package lfserrors

// Kind classifies an *Error for both retry policy (Policy.Do) and errno
// translation (ToErrno).
type Kind int

const (
	KindUnknown Kind = iota

	// Transport.
	KindTimeout
	KindConnect
	KindProtocol

	// Integrity.
	KindChunkCrc
	KindVersionMismatch
	KindLockID

	// Availability.
	KindNoValidCopies
	KindChunkserverOverloaded

	// Permission/semantic, one per POSIX errno the boundary must produce.
	KindEacces
	KindEperm
	KindEnoent
	KindEexist
	KindEnotempty
	KindEnotdir
	KindEnametoolong
	KindEfbig
	KindEinval
	KindEnoattr
	KindEnotsup

	// Quota/limit.
	KindGroupNotRegistered
	KindLimitExceeded

	// Fatal (session).
	KindSessionLost
	KindPasswordNeeded
)

var kindNames = map[Kind]string{
	KindUnknown:               "Unknown",
	KindTimeout:               "Timeout",
	KindConnect:               "Connect",
	KindProtocol:              "Protocol",
	KindChunkCrc:              "ChunkCrc",
	KindVersionMismatch:       "VersionMismatch",
	KindLockID:                "LockId",
	KindNoValidCopies:         "NoValidCopies",
	KindChunkserverOverloaded: "ChunkserverOverloaded",
	KindEacces:                "Eacces",
	KindEperm:                 "Eperm",
	KindEnoent:                "Enoent",
	KindEexist:                "Eexist",
	KindEnotempty:             "Enotempty",
	KindEnotdir:               "Enotdir",
	KindEnametoolong:          "Enametoolong",
	KindEfbig:                 "Efbig",
	KindEinval:                "Einval",
	KindEnoattr:               "Enoattr",
	KindEnotsup:               "Enotsup",
	KindGroupNotRegistered:    "GroupNotRegistered",
	KindLimitExceeded:         "LimitExceeded",
	KindSessionLost:           "SessionLost",
	KindPasswordNeeded:        "PasswordNeeded",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "Unknown"
}

// IsTransportOrIntegrity reports whether k is eligible for the local
// retry-with-replan policy described for the read and write paths.
func (k Kind) IsTransportOrIntegrity() bool {
	switch k {
	case KindTimeout, KindConnect, KindProtocol, KindChunkCrc, KindVersionMismatch:
		return true
	default:
		return false
	}
}
