package mft

import (
	"encoding/binary"
	"time"

	"github.com/sandraschi/fastsearch-mcp/internal/index"
	"github.com/sandraschi/fastsearch-mcp/mfterrors"
)

// minRecordNumber is the boundary below which MFT records are NTFS system
// files (prefixed with $, e.g. $MFT, $MFTMirr, $LogFile, $Volume,
// $AttrDef, $Root, $Bitmap, $Boot, $BadClus, $Secure, $UpCase, $Extend) and
// are skipped per spec.md §4.2.
const minRecordNumber = 24

// ntFiletimeEpochOffset is the number of 100ns ticks between the NT epoch
// (1601-01-01) and the Unix epoch (1970-01-01).
const ntFiletimeEpochOffset = 116444736000000000

// FiletimeToTime converts an NT FILETIME tick count (100ns since
// 1601-01-01 UTC) to a time.Time.
func FiletimeToTime(ft int64) time.Time {
	unixNano := (ft - ntFiletimeEpochOffset) * 100
	return time.Unix(0, unixNano).UTC()
}

// DroppedRecord describes a record that parsed but was excluded, for
// logging purposes (spec §4.2: "dropped (logged, not fatal)").
type DroppedRecord struct {
	RecordNumber uint32
	Reason       string
}

// Parse walks buf (the raw MFT byte stream) in bytesPerRecord-sized chunks
// and returns the FileEntry values that survive validation, plus any
// records that were dropped (for the caller to log). It never returns a
// partial/corrupt entry: validation failures are recorded in dropped and
// the record is skipped, matching spec §4.2's "not fatal" requirement,
// except when bytesPerRecord is zero or the overall buffer is shorter than
// one record, which propagates as Corrupt (the primary MFT stream is unusable).
func Parse(buf []byte, bytesPerRecord uint32) ([]index.FileEntry, []DroppedRecord, error) {
	if bytesPerRecord == 0 {
		return nil, nil, mfterrors.New(mfterrors.KindCorrupt, "parse", "bytes_per_record is zero")
	}
	if len(buf) < int(bytesPerRecord) {
		return nil, nil, mfterrors.New(mfterrors.KindCorrupt, "parse", "buffer shorter than one record")
	}

	var entries []index.FileEntry
	var dropped []DroppedRecord

	count := len(buf) / int(bytesPerRecord)
	for i := 0; i < count; i++ {
		start := i * int(bytesPerRecord)
		record := buf[start : start+int(bytesPerRecord)]

		entry, reason, ok := parseOneRecord(record)
		if !ok {
			if reason != "" {
				dropped = append(dropped, DroppedRecord{RecordNumber: uint32(i), Reason: reason})
			}
			continue
		}
		entries = append(entries, entry)
	}
	return entries, dropped, nil
}

// ParseRecord parses a single raw MFT record, as returned by a one-off
// single-record re-read (e.g. volume.Reader.ReadFileRecord), applying the
// same validation and fixup as Parse's batch path. ok is false if the
// record is unallocated, fails fixup validation, or has no usable
// $FILE_NAME attribute.
func ParseRecord(record []byte) (index.FileEntry, bool) {
	entry, _, ok := parseOneRecord(record)
	return entry, ok
}

func parseOneRecord(record []byte) (index.FileEntry, string, bool) {
	header, err := parseRecordHeader(record)
	if err != nil {
		return index.FileEntry{}, "short header", false
	}
	if !header.isValidSignature() {
		return index.FileEntry{}, "", false // unallocated/never-used slot, silently skip
	}
	if err := applyFixup(record, header); err != nil {
		return index.FileEntry{}, "fixup mismatch", false
	}
	if !header.inUse() {
		return index.FileEntry{}, "", false
	}
	if header.MftRecordNumber < minRecordNumber {
		return index.FileEntry{}, "", false
	}

	var (
		bestName    fileNameAttr
		haveName    bool
		bestRank    = -1
		stdInfo     standardInfoAttr
		haveStdInfo bool
		data        dataAttr
	)

	offset := int(header.FirstAttrOffset)
	for offset+attrHeaderSize <= len(record) {
		typ := binary.LittleEndian.Uint32(record[offset : offset+4])
		if typ == attrTypeEnd {
			break
		}
		ah, err := parseAttrHeader(record[offset:])
		if err != nil || ah.Length == 0 || offset+int(ah.Length) > len(record) {
			break
		}
		attrBuf := record[offset : offset+int(ah.Length)]

		switch ah.Type {
		case attrFileName:
			if ah.NonResident {
				break
			}
			if contentOffset, content, ok := residentContent(attrBuf); ok {
				_ = contentOffset
				if fn, ok := parseFileName(content); ok {
					if rank := namespaceRank(fn.Namespace); rank > bestRank {
						bestRank = rank
						bestName = fn
						haveName = true
					}
				}
			}
		case attrStdInfo:
			if !ah.NonResident {
				if _, content, ok := residentContent(attrBuf); ok {
					if si, ok := parseStandardInformation(content); ok {
						stdInfo = si
						haveStdInfo = true
					}
				}
			}
		case attrData:
			if ah.NameLength == 0 { // unnamed $DATA stream only
				if size, ok := dataRealSize(attrBuf, ah); ok {
					data.RealSize = size
				}
			}
		}

		offset += int(ah.Length)
	}

	if !haveName {
		return index.FileEntry{}, "no valid $FILE_NAME", false
	}

	entry := index.FileEntry{
		ID:       uint64(header.MftRecordNumber),
		ParentID: bestName.ParentRef,
		Name:     bestName.Name,
		Size:     data.RealSize,
		IsDir:    header.isDir(),
		Created:  FiletimeToTime(bestName.Created),
		Modified: FiletimeToTime(bestName.Modified),
		Accessed: FiletimeToTime(bestName.Accessed),
	}
	if haveStdInfo {
		entry.Attributes = stdInfo.Attributes
	}
	if entry.IsDir {
		entry.Size = 0
	}
	return entry, "", true
}

// residentContent returns the content bytes of a resident attribute.
func residentContent(attrBuf []byte) (int, []byte, bool) {
	if len(attrBuf) < 24 {
		return 0, nil, false
	}
	contentLength := binary.LittleEndian.Uint32(attrBuf[16:20])
	contentOffset := binary.LittleEndian.Uint16(attrBuf[20:22])
	end := int(contentOffset) + int(contentLength)
	if end > len(attrBuf) {
		return 0, nil, false
	}
	return int(contentOffset), attrBuf[contentOffset:end], true
}

// dataRealSize extracts the real (logical) size from a $DATA attribute,
// whether resident or not — for non-resident streams the real size is
// stored in the non-resident header, so no run-list parsing is needed to
// report file size.
func dataRealSize(attrBuf []byte, ah attrHeader) (uint64, bool) {
	if !ah.NonResident {
		_, content, ok := residentContent(attrBuf)
		if !ok {
			return 0, false
		}
		return uint64(len(content)), true
	}
	if len(attrBuf) < 56 {
		return 0, false
	}
	return binary.LittleEndian.Uint64(attrBuf[48:56]), true
}
