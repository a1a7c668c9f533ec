// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package hashid computes the content-addressed identifiers used to key the
// verdict cache.
package hashid

import (
	"crypto/sha1"
	"encoding/hex"
)

// ID is a lowercase hex-encoded SHA-1 digest of a file's raw bytes.
type ID string

// Of returns the ID for the given file contents.
func Of(content []byte) ID {
	sum := sha1.Sum(content)
	return ID(hex.EncodeToString(sum[:]))
}

// String returns id as a plain string.
func (id ID) String() string {
	return string(id)
}
