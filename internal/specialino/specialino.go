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

// Package specialino names the reserved inode numbers the master
// recognizes outside of the regular filesystem namespace.
package specialino

// Inode is a master-assigned file identifier.
type Inode uint32

const (
	// Root is the filesystem root directory's inode.
	Root Inode = 1

	// MaxRegularInode is the highest inode number the master will ever
	// hand out for a real file or directory; everything above it is
	// reserved for the pseudo-files below.
	MaxRegularInode Inode = 0x7FFFFFFF

	// MasterInfo exposes master connection/version info as a pseudo-file.
	MasterInfo Inode = MaxRegularInode + 1
	// Stats exposes accumulated operation counters.
	Stats Inode = MaxRegularInode + 2
	// Tweaks exposes runtime-tunable master parameters.
	Tweaks Inode = MaxRegularInode + 3
	// OpLog streams recent master operations.
	OpLog Inode = MaxRegularInode + 4
	// OpHistory streams the full retained master operation history.
	OpHistory Inode = MaxRegularInode + 5
	// FileByInode resolves an inode number to a path, by name lookup.
	FileByInode Inode = MaxRegularInode + 6
	// MetaTrash is the meta-filesystem's trash directory.
	MetaTrash Inode = MaxRegularInode + 7
	// MetaReserved is the meta-filesystem's reserved-files directory.
	MetaReserved Inode = MaxRegularInode + 8
	// MetaUndel is the meta-filesystem's undelete directory.
	MetaUndel Inode = MaxRegularInode + 9
)

var names = map[Inode]string{
	Root:         "ROOT",
	MasterInfo:   "MASTERINFO",
	Stats:        "STATS",
	Tweaks:       "TWEAKS",
	OpLog:        "OPLOG",
	OpHistory:    "OPHISTORY",
	FileByInode:  "FILE_BY_INODE",
	MetaTrash:    "META_TRASH",
	MetaReserved: "META_RESERVED",
	MetaUndel:    "META_UNDEL",
}

// IsSpecial reports whether ino refers to a pseudo-file rather than a
// regular entry in the filesystem namespace.
func IsSpecial(ino Inode) bool {
	return ino > MaxRegularInode
}

// Name returns the pseudo-file's canonical name, or "" if ino is not one
// of the reserved inodes.
func Name(ino Inode) string {
	return names[ino]
}
