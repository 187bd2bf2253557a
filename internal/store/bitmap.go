// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"bytes"

	"github.com/RoaringBitmap/roaring"
)

// Bitmap is the posting representation: a compressed sorted set of
// file_id values. It is a thin alias over RoaringBitmap/roaring so
// callers outside this package never import the bitmap library directly.
type Bitmap = roaring.Bitmap

// NewBitmap returns an empty posting bitmap.
func NewBitmap() *Bitmap {
	return roaring.New()
}

func encodeBitmap(bm *Bitmap) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := bm.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeBitmap(blob []byte) (*Bitmap, error) {
	bm := roaring.New()
	if _, err := bm.ReadFrom(bytes.NewReader(blob)); err != nil {
		return nil, err
	}
	return bm, nil
}

// SortByCardinality orders bitmaps ascending by cardinality so an
// intersection of several postings shrinks as fast as possible.
func SortByCardinality(bitmaps []*Bitmap) {
	// simple insertion sort: the candidate count per query is tiny
	// (bounded by the number of distinct trigrams in a short query string)
	for i := 1; i < len(bitmaps); i++ {
		for j := i; j > 0 && bitmaps[j-1].GetCardinality() > bitmaps[j].GetCardinality(); j-- {
			bitmaps[j-1], bitmaps[j] = bitmaps[j], bitmaps[j-1]
		}
	}
}
