// Copyright 2026 PixelFlow
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"pixelflow/platform/router/provider"
)

// Key addresses one cache entry: the owning user plus the deterministic
// fingerprint of the request content.
type Key struct {
	UserID      string
	Fingerprint string
}

// String renders the key in storage form.
func (k Key) String() string {
	return k.UserID + ":" + k.Fingerprint
}

// KeyFor computes the cache key for a request. The fingerprint is a SHA-256
// digest over a canonical, length-prefixed serialization of every field that
// changes the edit outcome: task, image content, prompt, quality hint, and
// target size. Identical requests always produce identical fingerprints;
// any prompt difference produces a different one.
func KeyFor(req provider.EditRequest) Key {
	h := sha256.New()

	writeField := func(field string) {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(field)))
		h.Write(n[:])
		h.Write([]byte(field))
	}

	writeField(string(req.Task))
	writeField(imageDigest(req.Image))
	for _, img := range req.ExtraImages {
		writeField(imageDigest(img))
	}
	writeField(req.Prompt)
	writeField(string(req.EffectiveQuality()))
	if req.TargetSize != nil {
		writeField(fmt.Sprintf("%dx%d", req.TargetSize.Width, req.TargetSize.Height))
	} else {
		writeField("")
	}

	return Key{
		UserID:      req.UserID,
		Fingerprint: hex.EncodeToString(h.Sum(nil)),
	}
}

// imageDigest normalizes image content: the digest covers the raw bytes, so
// byte-identical images match regardless of file name or transport encoding.
func imageDigest(img provider.ImageRef) string {
	sum := sha256.Sum256(img.Data)
	return hex.EncodeToString(sum[:])
}
