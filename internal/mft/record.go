// Package mft parses raw MFT record bytes into index.FileEntry values.
// Record and attribute layouts follow the on-disk NTFS structures as
// implemented by original_source/service/src/ntfs_reader.rs: fixed-size
// records with an update-sequence fixup array, an attribute stream with
// $STANDARD_INFORMATION/$FILE_NAME/$DATA providing the fields spec.md §4.2
// names.
package mft

import (
	"encoding/binary"

	"github.com/sandraschi/fastsearch-mcp/mfterrors"
)

const (
	recordSignature = "FILE"

	flagInUse     = 0x0001
	flagIsDir     = 0x0002
	attrTypeEnd   = 0xFFFFFFFF
	attrStdInfo   = 0x10
	attrFileName  = 0x30
	attrData      = 0x80
)

// recordHeader mirrors the fixed MFT record header layout.
type recordHeader struct {
	Signature          [4]byte
	UpdateSeqOffset    uint16
	UpdateSeqSize      uint16
	LogFileSeqNumber   uint64
	SequenceNumber     uint16
	HardLinkCount      uint16
	FirstAttrOffset    uint16
	Flags              uint16
	UsedSize           uint32
	AllocatedSize      uint32
	BaseRecordRef      uint64
	NextAttrID         uint16
	_                  uint16
	MftRecordNumber    uint32
}

const recordHeaderSize = 48

func parseRecordHeader(buf []byte) (recordHeader, error) {
	if len(buf) < recordHeaderSize {
		return recordHeader{}, mfterrors.New(mfterrors.KindCorrupt, "parse_record_header", "buffer shorter than header")
	}
	var h recordHeader
	copy(h.Signature[:], buf[0:4])
	h.UpdateSeqOffset = binary.LittleEndian.Uint16(buf[4:6])
	h.UpdateSeqSize = binary.LittleEndian.Uint16(buf[6:8])
	h.LogFileSeqNumber = binary.LittleEndian.Uint64(buf[8:16])
	h.SequenceNumber = binary.LittleEndian.Uint16(buf[16:18])
	h.HardLinkCount = binary.LittleEndian.Uint16(buf[18:20])
	h.FirstAttrOffset = binary.LittleEndian.Uint16(buf[20:22])
	h.Flags = binary.LittleEndian.Uint16(buf[22:24])
	h.UsedSize = binary.LittleEndian.Uint32(buf[24:28])
	h.AllocatedSize = binary.LittleEndian.Uint32(buf[28:32])
	h.BaseRecordRef = binary.LittleEndian.Uint64(buf[32:40])
	h.NextAttrID = binary.LittleEndian.Uint16(buf[40:42])
	h.MftRecordNumber = binary.LittleEndian.Uint32(buf[44:48])
	return h, nil
}

func (h recordHeader) isValidSignature() bool {
	return string(h.Signature[:]) == recordSignature
}

func (h recordHeader) inUse() bool { return h.Flags&flagInUse != 0 }
func (h recordHeader) isDir() bool { return h.Flags&flagIsDir != 0 }

// applyFixup undoes the update-sequence array substitution so the record's
// sector-end bytes read correctly. The last two bytes of every 512-byte
// sector are replaced on disk with a check value and the real bytes stored
// in the fixup array; this restores them in place and validates the check
// value, surfacing Corrupt on mismatch.
func applyFixup(buf []byte, h recordHeader) error {
	if int(h.UpdateSeqOffset)+2 > len(buf) {
		return mfterrors.New(mfterrors.KindCorrupt, "apply_fixup", "update sequence offset out of range")
	}
	usn := buf[h.UpdateSeqOffset : h.UpdateSeqOffset+2]
	fixups := buf[h.UpdateSeqOffset+2:]

	const sectorSize = 512
	numSectors := len(buf) / sectorSize
	if int(h.UpdateSeqSize) < numSectors+1 {
		// Not enough fixup entries for every sector; treat as corrupt but
		// non-fatal at the caller (record is dropped, scan continues).
		return mfterrors.New(mfterrors.KindCorrupt, "apply_fixup", "insufficient fixup entries")
	}

	for i := 0; i < numSectors; i++ {
		end := i*sectorSize + sectorSize
		if end > len(buf) {
			break
		}
		checkOffset := end - 2
		check := buf[checkOffset : checkOffset+2]
		if check[0] != usn[0] || check[1] != usn[1] {
			return mfterrors.New(mfterrors.KindCorrupt, "apply_fixup", "fixup check value mismatch")
		}
		if (i+1)*2+2 > len(fixups) {
			return mfterrors.New(mfterrors.KindCorrupt, "apply_fixup", "fixup array short")
		}
		copy(check, fixups[i*2:i*2+2])
	}
	return nil
}
