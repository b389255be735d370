// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package nifti

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Encode writes v as a single-file NIfTI-1 volume (float64, little
// endian, sform affine). Used to produce fixtures and intermediate
// volumes; not a general-purpose writer.
func Encode(w io.Writer, v *Volume) error {
	if len(v.Data) != v.NumVoxels() {
		return fmt.Errorf("data length %d does not match shape %v", len(v.Data), v.Shape)
	}

	var hdr header
	hdr.SizeofHdr = headerSize
	hdr.Dim = [8]int16{3, int16(v.Shape[0]), int16(v.Shape[1]), int16(v.Shape[2]), 1, 1, 1, 1}
	hdr.Datatype = dtFloat64
	hdr.Bitpix = 64
	hdr.Pixdim = [8]float32{1, 1, 1, 1, 0, 0, 0, 0}
	hdr.VoxOffset = 352
	hdr.SclSlope = 1
	hdr.SformCode = 1
	for j := 0; j < 4; j++ {
		hdr.SrowX[j] = float32(v.Affine.At(0, j))
		hdr.SrowY[j] = float32(v.Affine.At(1, j))
		hdr.SrowZ[j] = float32(v.Affine.At(2, j))
	}
	copy(hdr.Magic[:], "n+1\x00")

	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	// Pad to vox_offset; the 4 bytes signal "no header extensions".
	if _, err := w.Write(make([]byte, 4)); err != nil {
		return fmt.Errorf("writing extension flag: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, v.Data); err != nil {
		return fmt.Errorf("writing voxel data: %w", err)
	}
	return nil
}

// Save writes v to path, gzip-compressed when the name ends in .gz.
func Save(path string, v *Volume) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	var w io.Writer = bw
	var gz *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		gz = gzip.NewWriter(bw)
		w = gz
	}

	if err := Encode(w, v); err != nil {
		return err
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return fmt.Errorf("closing gzip stream: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flushing %s: %w", path, err)
	}
	return f.Close()
}
