package mftcore

import (
	"context"
	"encoding/binary"
	"testing"
	"time"
	"unicode/utf16"

	"github.com/sandraschi/fastsearch-mcp/internal/query"
	"github.com/sandraschi/fastsearch-mcp/internal/volume"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- a minimal fake volume.Reader, grounded on internal/mft's own
// synthetic-record test fixture, reproduced locally since that helper is
// unexported in package mft.

const fakeRecordSize = 1024
const fakeSectorSize = 512

func buildFakeRecord(recordNumber uint32, name string, parentRef uint64, isDir bool, size uint64) []byte {
	buf := make([]byte, fakeRecordSize)
	const usaOffset = 48
	const usaCount = fakeRecordSize/fakeSectorSize + 1

	attrStart := usaOffset + usaCount*2
	if attrStart%8 != 0 {
		attrStart += 8 - attrStart%8
	}
	offset := attrStart

	const attrStdInfo = 0x10
	const attrFileName = 0x30
	const attrData = 0x80
	const attrTypeEnd = 0xFFFFFFFF

	writeResidentHeader := func(at int, typ uint32, length uint32, contentLen uint32) {
		binary.LittleEndian.PutUint32(buf[at:at+4], typ)
		binary.LittleEndian.PutUint32(buf[at+4:at+8], length)
		buf[at+8] = 0
		buf[at+9] = 0
		binary.LittleEndian.PutUint32(buf[at+16:at+20], contentLen)
		binary.LittleEndian.PutUint16(buf[at+20:at+22], 24)
	}

	stdInfoLen := 24 + 48
	writeResidentHeader(offset, attrStdInfo, uint32(stdInfoLen), 48)
	content := buf[offset+24 : offset+24+48]
	binary.LittleEndian.PutUint64(content[0:8], 130000000000000000)
	binary.LittleEndian.PutUint64(content[8:16], 130000000000000001)
	binary.LittleEndian.PutUint64(content[24:32], 130000000000000002)
	binary.LittleEndian.PutUint32(content[32:36], 0x20)
	offset += stdInfoLen

	nameUTF16 := utf16.Encode([]rune(name))
	fnContentLen := 66 + len(nameUTF16)*2
	fnAttrLen := 24 + fnContentLen
	if fnAttrLen%8 != 0 {
		fnAttrLen += 8 - fnAttrLen%8
	}
	writeResidentHeader(offset, attrFileName, uint32(fnAttrLen), uint32(fnContentLen))
	fnContent := buf[offset+24 : offset+24+fnContentLen]
	binary.LittleEndian.PutUint64(fnContent[0:8], parentRef&0x0000FFFFFFFFFFFF)
	binary.LittleEndian.PutUint64(fnContent[8:16], 130000000000000000)
	binary.LittleEndian.PutUint64(fnContent[16:24], 130000000000000001)
	binary.LittleEndian.PutUint64(fnContent[32:40], 130000000000000002)
	binary.LittleEndian.PutUint64(fnContent[48:56], size)
	fnContent[64] = byte(len(nameUTF16))
	fnContent[65] = 1 // Win32 namespace
	for i, u := range nameUTF16 {
		binary.LittleEndian.PutUint16(fnContent[66+i*2:66+i*2+2], u)
	}
	offset += fnAttrLen

	dataAttrLen := 24 + int(size)
	if dataAttrLen%8 != 0 {
		dataAttrLen += 8 - dataAttrLen%8
	}
	if offset+dataAttrLen+8 < len(buf) {
		writeResidentHeader(offset, attrData, uint32(dataAttrLen), uint32(size))
		offset += dataAttrLen
	}
	binary.LittleEndian.PutUint32(buf[offset:offset+4], attrTypeEnd)

	copy(buf[0:4], []byte("FILE"))
	binary.LittleEndian.PutUint16(buf[4:6], usaOffset)
	binary.LittleEndian.PutUint16(buf[6:8], uint16(usaCount))
	flags := uint16(0x0001)
	if isDir {
		flags |= 0x0002
	}
	binary.LittleEndian.PutUint16(buf[22:24], flags)
	binary.LittleEndian.PutUint16(buf[20:22], uint16(attrStart))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(offset+8))
	binary.LittleEndian.PutUint32(buf[28:32], fakeRecordSize)
	binary.LittleEndian.PutUint32(buf[44:48], recordNumber)

	checkValue := uint16(0x0101)
	binary.LittleEndian.PutUint16(buf[usaOffset:usaOffset+2], checkValue)
	numSectors := usaCount - 1
	for i := 0; i < numSectors; i++ {
		end := (i + 1) * fakeSectorSize
		checkOffset := end - 2
		real := make([]byte, 2)
		copy(real, buf[checkOffset:checkOffset+2])
		copy(buf[usaOffset+2+i*2:usaOffset+2+i*2+2], real)
		binary.LittleEndian.PutUint16(buf[checkOffset:checkOffset+2], checkValue)
	}
	return buf
}

type fakeHandle struct{ drive byte }

func (h *fakeHandle) Close() error      { return nil }
func (h *fakeHandle) NtfsMode() bool    { return true }
func (h *fakeHandle) DriveLetter() byte { return h.drive }

// fakeReader serves one fixed MFT buffer and a no-op journal, so Open,
// Query, Rebuild, and Close can be exercised without real Windows APIs.
type fakeReader struct {
	mftBuf []byte
}

func newFakeReader() *fakeReader {
	// Record numbers below 24 are NTFS system files that mft.Parse skips,
	// so the fixture's directory and file use 24 and 30.
	root := buildFakeRecord(24, "C:", 24, true, 0)
	doc := buildFakeRecord(30, "README.md", 24, false, 7)
	buf := append(append([]byte{}, root...), doc...)
	return &fakeReader{mftBuf: buf}
}

func (r *fakeReader) Open(ctx context.Context, drive byte) (volume.Handle, error) {
	return &fakeHandle{drive: drive}, nil
}

func (r *fakeReader) QueryVolumeData(ctx context.Context, h volume.Handle) (volume.VolumeData, error) {
	return volume.VolumeData{BytesPerFileRecord: fakeRecordSize}, nil
}

func (r *fakeReader) ReadMFTBytes(ctx context.Context, h volume.Handle, vd volume.VolumeData) ([]byte, error) {
	return r.mftBuf, nil
}

func (r *fakeReader) QueryUSNJournal(ctx context.Context, h volume.Handle) (volume.JournalData, error) {
	return volume.JournalData{JournalID: 1, NextUSN: 100}, nil
}

func (r *fakeReader) ReadUSNRecords(ctx context.Context, h volume.Handle, startUSN int64, mask volume.USNReason, buf []byte) ([]volume.USNRecord, int64, error) {
	<-ctx.Done()
	return nil, startUSN, ctx.Err()
}

func (r *fakeReader) ReadFileRecord(ctx context.Context, h volume.Handle, fileRefID uint64, bytesPerRecord uint32) ([]byte, error) {
	for i := 0; i+fakeRecordSize <= len(r.mftBuf); i += fakeRecordSize {
		record := r.mftBuf[i : i+fakeRecordSize]
		recordNumber := binary.LittleEndian.Uint32(record[44:48])
		if uint64(recordNumber) == fileRefID {
			out := make([]byte, fakeRecordSize)
			copy(out, record)
			return out, nil
		}
	}
	return nil, nil
}

func TestEngineOpenQueryStatsClose(t *testing.T) {
	ctx := context.Background()
	e, err := Open(ctx, newFakeReader(), 'C', Config{AutoStartJournal: false})
	require.NoError(t, err)
	defer e.Close()

	resp, err := e.Query(query.Spec{Pattern: "README.md", Mode: query.ModeExact})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "README.md", resp.Results[0].Path)

	stats := e.Stats()
	assert.True(t, stats.Healthy)
	assert.Equal(t, 2, stats.FileCount)
	assert.Equal(t, uint64(1), stats.JournalID)
}

func TestEngineRebuild(t *testing.T) {
	ctx := context.Background()
	e, err := Open(ctx, newFakeReader(), 'C', Config{AutoStartJournal: false})
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Rebuild(ctx))
	resp, err := e.Query(query.Spec{Pattern: "*.md", Mode: query.ModeGlob})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
}

func TestEngineQueryBeforeOpenFails(t *testing.T) {
	e := &Engine{}
	_, err := e.Query(query.Spec{Pattern: "x", Mode: query.ModeExact})
	assert.Error(t, err)
}

func TestEngineAutoSaveRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	e, err := Open(ctx, newFakeReader(), 'C', Config{
		AutoStartJournal: false,
		CacheDir:         dir,
		MaxCacheVersions: 3,
		SaveInterval:     0,
	})
	require.NoError(t, err)

	e.mu.Lock()
	e.saveLocked()
	e.mu.Unlock()
	require.NoError(t, e.Close())

	e2, err := Open(ctx, newFakeReader(), 'C', Config{AutoStartJournal: false, CacheDir: dir})
	require.NoError(t, err)
	defer e2.Close()
	stats := e2.Stats()
	assert.Equal(t, 2, stats.FileCount)
	_ = time.Second
}
