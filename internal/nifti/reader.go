// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package nifti

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/pdiddy/ibis-pipeline/internal/geometry"
)

const headerSize = 348

// NIfTI-1 datatype codes.
const (
	dtUint8   = 2
	dtInt16   = 4
	dtInt32   = 8
	dtFloat32 = 16
	dtFloat64 = 64
	dtInt8    = 256
	dtUint16  = 512
	dtUint32  = 768
)

// header mirrors the on-disk nifti_1_header layout byte for byte.
type header struct {
	SizeofHdr    int32
	DataType     [10]byte
	DBName       [18]byte
	Extents      int32
	SessionError int16
	Regular      byte
	DimInfo      byte
	Dim          [8]int16
	IntentP1     float32
	IntentP2     float32
	IntentP3     float32
	IntentCode   int16
	Datatype     int16
	Bitpix       int16
	SliceStart   int16
	Pixdim       [8]float32
	VoxOffset    float32
	SclSlope     float32
	SclInter     float32
	SliceEnd     int16
	SliceCode    byte
	XyztUnits    byte
	CalMax       float32
	CalMin       float32
	SliceDur     float32
	Toffset      float32
	Glmax        int32
	Glmin        int32
	Descrip      [80]byte
	AuxFile      [24]byte
	QformCode    int16
	SformCode    int16
	QuaternB     float32
	QuaternC     float32
	QuaternD     float32
	QoffsetX     float32
	QoffsetY     float32
	QoffsetZ     float32
	SrowX        [4]float32
	SrowY        [4]float32
	SrowZ        [4]float32
	IntentName   [16]byte
	Magic        [4]byte
}

// Load reads a NIfTI-1 volume from path. Files ending in .gz are
// decompressed transparently. For 4-D files only the first volume is
// read; trailing timepoints are ignored.
func Load(path string) (*Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = bufio.NewReaderSize(f, 1<<20)
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("opening gzip stream %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	v, err := Decode(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return v, nil
}

// Decode reads a NIfTI-1 volume from an uncompressed byte stream.
func Decode(r io.Reader) (*Volume, error) {
	raw := make([]byte, headerSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	// sizeof_hdr doubles as the endianness marker.
	var order binary.ByteOrder = binary.LittleEndian
	if binary.LittleEndian.Uint32(raw[:4]) != headerSize {
		if binary.BigEndian.Uint32(raw[:4]) != headerSize {
			return nil, fmt.Errorf("not a NIfTI-1 file (sizeof_hdr mismatch)")
		}
		order = binary.BigEndian
	}

	var hdr header
	if err := binary.Read(bytes.NewReader(raw), order, &hdr); err != nil {
		return nil, fmt.Errorf("decoding header: %w", err)
	}

	magic := string(hdr.Magic[:3])
	if magic != "n+1" {
		if magic == "ni1" {
			return nil, fmt.Errorf("two-file NIfTI (hdr/img pairs) is not supported")
		}
		return nil, fmt.Errorf("unrecognized NIfTI magic %q", magic)
	}

	ndim := int(hdr.Dim[0])
	if ndim < 3 || ndim > 7 {
		return nil, fmt.Errorf("unsupported dimensionality %d", ndim)
	}
	shape := [3]int{int(hdr.Dim[1]), int(hdr.Dim[2]), int(hdr.Dim[3])}
	for axis, n := range shape {
		if n <= 0 {
			return nil, fmt.Errorf("non-positive extent %d on axis %d", n, axis)
		}
	}

	// Skip the gap between header and voxel data (extensions live here).
	if skip := int64(hdr.VoxOffset) - headerSize; skip > 0 {
		if _, err := io.CopyN(io.Discard, r, skip); err != nil {
			return nil, fmt.Errorf("skipping to voxel data: %w", err)
		}
	}

	nvox := shape[0] * shape[1] * shape[2]
	data, err := readVoxels(r, order, int(hdr.Datatype), nvox)
	if err != nil {
		return nil, err
	}

	// scl_slope == 0 means no scaling per the standard.
	if slope := float64(hdr.SclSlope); slope != 0 && (slope != 1 || hdr.SclInter != 0) {
		inter := float64(hdr.SclInter)
		for i := range data {
			data[i] = data[i]*slope + inter
		}
	}

	return &Volume{
		Shape:  shape,
		Affine: affineFromHeader(&hdr),
		Data:   data,
	}, nil
}

// readVoxels reads nvox scalars of the given datatype into float64s.
func readVoxels(r io.Reader, order binary.ByteOrder, datatype, nvox int) ([]float64, error) {
	width, ok := map[int]int{
		dtUint8: 1, dtInt8: 1,
		dtInt16: 2, dtUint16: 2,
		dtInt32: 4, dtUint32: 4, dtFloat32: 4,
		dtFloat64: 8,
	}[datatype]
	if !ok {
		return nil, fmt.Errorf("unsupported datatype code %d", datatype)
	}

	buf := make([]byte, nvox*width)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("reading voxel data: %w", err)
	}

	data := make([]float64, nvox)
	switch datatype {
	case dtUint8:
		for i := range data {
			data[i] = float64(buf[i])
		}
	case dtInt8:
		for i := range data {
			data[i] = float64(int8(buf[i]))
		}
	case dtInt16:
		for i := range data {
			data[i] = float64(int16(order.Uint16(buf[i*2:])))
		}
	case dtUint16:
		for i := range data {
			data[i] = float64(order.Uint16(buf[i*2:]))
		}
	case dtInt32:
		for i := range data {
			data[i] = float64(int32(order.Uint32(buf[i*4:])))
		}
	case dtUint32:
		for i := range data {
			data[i] = float64(order.Uint32(buf[i*4:]))
		}
	case dtFloat32:
		for i := range data {
			data[i] = float64(math.Float32frombits(order.Uint32(buf[i*4:])))
		}
	case dtFloat64:
		for i := range data {
			data[i] = math.Float64frombits(order.Uint64(buf[i*8:]))
		}
	}
	return data, nil
}

// affineFromHeader derives the voxel-to-world transform. sform wins when
// present, then qform, then a plain pixdim spacing with zero origin.
func affineFromHeader(hdr *header) geometry.Affine {
	if hdr.SformCode > 0 {
		return geometry.NewAffine([16]float64{
			float64(hdr.SrowX[0]), float64(hdr.SrowX[1]), float64(hdr.SrowX[2]), float64(hdr.SrowX[3]),
			float64(hdr.SrowY[0]), float64(hdr.SrowY[1]), float64(hdr.SrowY[2]), float64(hdr.SrowY[3]),
			float64(hdr.SrowZ[0]), float64(hdr.SrowZ[1]), float64(hdr.SrowZ[2]), float64(hdr.SrowZ[3]),
			0, 0, 0, 1,
		})
	}
	if hdr.QformCode > 0 {
		return qformAffine(hdr)
	}
	return geometry.Diagonal(
		float64(hdr.Pixdim[1]), float64(hdr.Pixdim[2]), float64(hdr.Pixdim[3]),
	)
}

// qformAffine reconstructs the rotation from the stored quaternion per
// the NIfTI-1 standard (method 2).
func qformAffine(hdr *header) geometry.Affine {
	b := float64(hdr.QuaternB)
	c := float64(hdr.QuaternC)
	d := float64(hdr.QuaternD)
	a := 1 - b*b - c*c - d*d
	if a < 0 {
		a = 0
	}
	a = math.Sqrt(a)

	sx := float64(hdr.Pixdim[1])
	sy := float64(hdr.Pixdim[2])
	sz := float64(hdr.Pixdim[3])
	// pixdim[0] is qfac: -1 flips the k axis, anything else means +1.
	if hdr.Pixdim[0] < 0 {
		sz = -sz
	}

	return geometry.NewAffine([16]float64{
		(a*a + b*b - c*c - d*d) * sx, (2*b*c - 2*a*d) * sy, (2*b*d + 2*a*c) * sz, float64(hdr.QoffsetX),
		(2*b*c + 2*a*d) * sx, (a*a + c*c - b*b - d*d) * sy, (2*c*d - 2*a*b) * sz, float64(hdr.QoffsetY),
		(2*b*d - 2*a*c) * sx, (2*c*d + 2*a*b) * sy, (a*a + d*d - b*b - c*c) * sz, float64(hdr.QoffsetZ),
		0, 0, 0, 1,
	})
}
