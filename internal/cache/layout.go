// Package cache implements CachePersistence: the byte-exact .bin/.meta
// on-disk format spec.md §6 pins, atomic write-then-rename saves, and
// versioned retention, grounded on
// original_source/service/src/fastsearch_service/cache_persistence.rs's
// save/load/prune protocol.
package cache

import (
	"encoding/binary"
	"io"
	"time"

	"github.com/sandraschi/fastsearch-mcp/internal/index"
	"github.com/sandraschi/fastsearch-mcp/mfterrors"
)

const (
	metaMagic   uint32 = 0x4D465443 // 'MFTC'
	metaVersion uint32 = 1
	metaSize           = 4 + 4 + 8 + 1 + 1 + 8 + 8 + 8 + 8 // 50 bytes
)

// Meta is the fixed .meta header, little-endian throughout, per spec.md §6.
type Meta struct {
	Created        int64 // unix seconds
	Drive          byte
	JournalID      uint64
	LastAppliedUSN int64
	FileCount      uint64
	TotalSize      uint64
}

// EncodeMeta writes m in the exact byte layout spec.md §6 pins.
func EncodeMeta(w io.Writer, m Meta) error {
	buf := make([]byte, 50)
	binary.LittleEndian.PutUint32(buf[0:4], metaMagic)
	binary.LittleEndian.PutUint32(buf[4:8], metaVersion)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(m.Created))
	buf[16] = m.Drive
	buf[17] = 0 // pad byte
	binary.LittleEndian.PutUint64(buf[18:26], m.JournalID)
	binary.LittleEndian.PutUint64(buf[26:34], uint64(m.LastAppliedUSN))
	binary.LittleEndian.PutUint64(buf[34:42], m.FileCount)
	binary.LittleEndian.PutUint64(buf[42:50], m.TotalSize)
	_, err := w.Write(buf[:50])
	return err
}

// DecodeMeta reads a .meta header, validating magic/version.
func DecodeMeta(r io.Reader) (Meta, error) {
	buf := make([]byte, 50)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Meta{}, mfterrors.Wrap(mfterrors.KindCorrupt, "decode_meta", "short read", err)
	}
	magic := binary.LittleEndian.Uint32(buf[0:4])
	version := binary.LittleEndian.Uint32(buf[4:8])
	if magic != metaMagic {
		return Meta{}, mfterrors.New(mfterrors.KindCorrupt, "decode_meta", "bad magic")
	}
	if version != metaVersion {
		return Meta{}, mfterrors.New(mfterrors.KindCorrupt, "decode_meta", "unsupported version")
	}
	return Meta{
		Created:        int64(binary.LittleEndian.Uint64(buf[8:16])),
		Drive:          buf[16],
		JournalID:      binary.LittleEndian.Uint64(buf[18:26]),
		LastAppliedUSN: int64(binary.LittleEndian.Uint64(buf[26:34])),
		FileCount:      binary.LittleEndian.Uint64(buf[34:42]),
		TotalSize:      binary.LittleEndian.Uint64(buf[42:50]),
	}, nil
}

// EncodeEntry writes one FileEntry in the .bin stream layout.
func EncodeEntry(w io.Writer, e index.FileEntry) error {
	nameBytes := []byte(e.Name)
	if len(nameBytes) > 0xFFFF {
		return mfterrors.New(mfterrors.KindInvalidArgument, "encode_entry", "name too long")
	}

	header := make([]byte, 8+8+4+8+8+8+8+1+2)
	binary.LittleEndian.PutUint64(header[0:8], e.ID)
	binary.LittleEndian.PutUint64(header[8:16], e.ParentID)
	binary.LittleEndian.PutUint32(header[16:20], e.Attributes)
	binary.LittleEndian.PutUint64(header[20:28], e.Size)
	binary.LittleEndian.PutUint64(header[28:36], uint64(timeToFiletime(e.Created)))
	binary.LittleEndian.PutUint64(header[36:44], uint64(timeToFiletime(e.Modified)))
	binary.LittleEndian.PutUint64(header[44:52], uint64(timeToFiletime(e.Accessed)))
	flags := byte(0)
	if e.IsDir {
		flags |= 1
	}
	header[52] = flags
	binary.LittleEndian.PutUint16(header[53:55], uint16(len(nameBytes)))

	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(nameBytes)
	return err
}

// DecodeEntry reads one FileEntry from the .bin stream. io.EOF (unwrapped)
// signals a clean end of stream.
func DecodeEntry(r io.Reader) (index.FileEntry, error) {
	header := make([]byte, 8+8+4+8+8+8+8+1+2)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.EOF {
			return index.FileEntry{}, io.EOF
		}
		return index.FileEntry{}, mfterrors.Wrap(mfterrors.KindCorrupt, "decode_entry", "short entry header", err)
	}

	var e index.FileEntry
	e.ID = binary.LittleEndian.Uint64(header[0:8])
	e.ParentID = binary.LittleEndian.Uint64(header[8:16])
	e.Attributes = binary.LittleEndian.Uint32(header[16:20])
	e.Size = binary.LittleEndian.Uint64(header[20:28])
	e.Created = filetimeToTime(int64(binary.LittleEndian.Uint64(header[28:36])))
	e.Modified = filetimeToTime(int64(binary.LittleEndian.Uint64(header[36:44])))
	e.Accessed = filetimeToTime(int64(binary.LittleEndian.Uint64(header[44:52])))
	e.IsDir = header[52]&1 != 0
	nameLen := binary.LittleEndian.Uint16(header[53:55])

	nameBytes := make([]byte, nameLen)
	if _, err := io.ReadFull(r, nameBytes); err != nil {
		return index.FileEntry{}, mfterrors.Wrap(mfterrors.KindCorrupt, "decode_entry", "short entry name", err)
	}
	e.Name = string(nameBytes)
	return e, nil
}

const ntFiletimeEpochOffset = 116444736000000000

func timeToFiletime(t time.Time) int64 {
	return t.UnixNano()/100 + ntFiletimeEpochOffset
}

func filetimeToTime(ft int64) time.Time {
	return time.Unix(0, (ft-ntFiletimeEpochOffset)*100).UTC()
}
