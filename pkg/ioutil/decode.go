// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package ioutil

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/ingestlabs/extractcore/internal/xerrors"
)

// Decoder decodes an image from a reader. No example repo in the
// retrieval pack vendors a third-party image codec (webp/heic
// libraries appear only in other_examples/ standalone files, never
// inside a complete repo's go.mod), so this is the one place this
// module falls back to the standard library on purpose: image.Decode
// plus the registered png/jpeg/gif codecs. The acquisition layer's
// content-type table also recognizes webp, bmp and tiff; those formats
// are not decodable here.
type Decoder interface {
	Decode(r io.Reader) (img image.Image, format string, err error)
}

type stdlibDecoder struct{}

// NewStdlibDecoder returns a Decoder backed by image.Decode.
func NewStdlibDecoder() Decoder { return stdlibDecoder{} }

func (stdlibDecoder) Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", xerrors.NewDecodeFailed(fmt.Errorf("decoding image: %w", err))
	}
	return img, format, nil
}
