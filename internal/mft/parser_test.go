package mft

import (
	"encoding/binary"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRecordSize = 1024
const testSectorSize = 512

// buildTestRecord constructs one well-formed, fixed-up MFT record for the
// given record number, name, parent ref and size, with a resident
// $STANDARD_INFORMATION, $FILE_NAME (Win32 namespace), and resident $DATA.
func buildTestRecord(recordNumber uint32, name string, parentRef uint64, isDir bool, size uint64) []byte {
	buf := make([]byte, testRecordSize)

	const usaOffset = 48
	const usaCount = testRecordSize/testSectorSize + 1 // 3

	attrStart := usaOffset + usaCount*2
	if attrStart%8 != 0 {
		attrStart += 8 - attrStart%8
	}

	offset := attrStart

	// $STANDARD_INFORMATION (resident)
	stdInfoLen := 24 + 48
	if stdInfoLen%8 != 0 {
		stdInfoLen += 8 - stdInfoLen%8
	}
	writeAttrHeaderResident(buf[offset:], attrStdInfo, uint32(stdInfoLen), 24, 48)
	content := buf[offset+24 : offset+24+48]
	binary.LittleEndian.PutUint64(content[0:8], 130000000000000000)  // created
	binary.LittleEndian.PutUint64(content[8:16], 130000000000000001) // modified
	binary.LittleEndian.PutUint64(content[24:32], 130000000000000002)
	binary.LittleEndian.PutUint32(content[32:36], 0x20) // FILE_ATTRIBUTE_ARCHIVE
	offset += stdInfoLen

	// $FILE_NAME (resident)
	nameUTF16 := utf16.Encode([]rune(name))
	fnContentLen := 66 + len(nameUTF16)*2
	fnAttrLen := 24 + fnContentLen
	if fnAttrLen%8 != 0 {
		fnAttrLen += 8 - fnAttrLen%8
	}
	writeAttrHeaderResident(buf[offset:], attrFileName, uint32(fnAttrLen), 24, uint32(fnContentLen))
	fnContent := buf[offset+24 : offset+24+fnContentLen]
	parentField := parentRef & 0x0000FFFFFFFFFFFF
	binary.LittleEndian.PutUint64(fnContent[0:8], parentField)
	binary.LittleEndian.PutUint64(fnContent[8:16], 130000000000000000)
	binary.LittleEndian.PutUint64(fnContent[16:24], 130000000000000001)
	binary.LittleEndian.PutUint64(fnContent[32:40], 130000000000000002)
	binary.LittleEndian.PutUint64(fnContent[48:56], size)
	fnContent[64] = byte(len(nameUTF16))
	fnContent[65] = byte(NamespaceWin32)
	for i, u := range nameUTF16 {
		binary.LittleEndian.PutUint16(fnContent[66+i*2:66+i*2+2], u)
	}
	offset += fnAttrLen

	// $DATA (resident, unnamed)
	dataAttrLen := 24 + int(size)
	if dataAttrLen%8 != 0 {
		dataAttrLen += 8 - dataAttrLen%8
	}
	if offset+dataAttrLen+8 < len(buf) {
		writeAttrHeaderResident(buf[offset:], attrData, uint32(dataAttrLen), 24, uint32(size))
		offset += dataAttrLen
	}

	// End marker.
	binary.LittleEndian.PutUint32(buf[offset:offset+4], attrTypeEnd)

	// Header.
	copy(buf[0:4], []byte(recordSignature))
	binary.LittleEndian.PutUint16(buf[4:6], usaOffset)
	binary.LittleEndian.PutUint16(buf[6:8], uint16(usaCount))
	flags := uint16(flagInUse)
	if isDir {
		flags |= flagIsDir
	}
	binary.LittleEndian.PutUint16(buf[22:24], flags)
	binary.LittleEndian.PutUint16(buf[20:22], uint16(attrStart))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(offset+8))
	binary.LittleEndian.PutUint32(buf[28:32], testRecordSize)
	binary.LittleEndian.PutUint32(buf[44:48], recordNumber)

	applyTestFixup(buf, usaOffset, usaCount)
	return buf
}

func writeAttrHeaderResident(buf []byte, attrType uint32, length uint32, contentOffset uint16, contentLength uint32) {
	binary.LittleEndian.PutUint32(buf[0:4], attrType)
	binary.LittleEndian.PutUint32(buf[4:8], length)
	buf[8] = 0 // resident
	buf[9] = 0 // name length
	binary.LittleEndian.PutUint16(buf[10:12], 0)
	binary.LittleEndian.PutUint32(buf[16:20], contentLength)
	binary.LittleEndian.PutUint16(buf[20:22], contentOffset)
}

// applyTestFixup performs the inverse of record.go's applyFixup: it picks a
// check value, stashes the real sector-end bytes into the USA array, and
// overwrites the sector-end bytes with the check value, exactly as NTFS
// does on disk.
func applyTestFixup(buf []byte, usaOffset, usaCount int) {
	checkValue := uint16(0x0101)
	binary.LittleEndian.PutUint16(buf[usaOffset:usaOffset+2], checkValue)

	numSectors := usaCount - 1
	for i := 0; i < numSectors; i++ {
		end := (i + 1) * testSectorSize
		checkOffset := end - 2
		real := make([]byte, 2)
		copy(real, buf[checkOffset:checkOffset+2])
		copy(buf[usaOffset+2+i*2:usaOffset+2+i*2+2], real)
		binary.LittleEndian.PutUint16(buf[checkOffset:checkOffset+2], checkValue)
	}
}

func TestParseExtractsWin32Name(t *testing.T) {
	record := buildTestRecord(100, "README.md", 5, false, 42)
	entries, dropped, err := Parse(record, testRecordSize)
	require.NoError(t, err)
	assert.Empty(t, dropped)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, uint64(100), e.ID)
	assert.Equal(t, uint64(5), e.ParentID)
	assert.Equal(t, "README.md", e.Name)
	assert.Equal(t, uint64(42), e.Size)
	assert.False(t, e.IsDir)
	assert.Equal(t, "md", e.Extension())
}

func TestParseSkipsSystemFiles(t *testing.T) {
	record := buildTestRecord(3, "$LogFile", 5, false, 0)
	entries, _, err := Parse(record, testRecordSize)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestParseSkipsNotInUse(t *testing.T) {
	record := buildTestRecord(100, "unused.tmp", 5, false, 0)
	// Clear the in-use flag after construction (still a valid signature).
	flags := binary.LittleEndian.Uint16(record[22:24])
	binary.LittleEndian.PutUint16(record[22:24], flags&^uint16(flagInUse))
	entries, _, err := Parse(record, testRecordSize)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestParseDirectoryHasZeroSize(t *testing.T) {
	record := buildTestRecord(200, "docs", 5, true, 0)
	entries, _, err := Parse(record, testRecordSize)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].IsDir)
	assert.Equal(t, uint64(0), entries[0].Size)
}

func TestFiletimeToTimeUnixEpoch(t *testing.T) {
	got := FiletimeToTime(ntFiletimeEpochOffset)
	assert.Equal(t, 1970, got.Year())
}
