//go:build windows

package volume

import (
	"context"
	"encoding/binary"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/sandraschi/fastsearch-mcp/mfterrors"
)

const (
	fsctlGetNtfsVolumeData = 0x00090064
	fsctlQueryUsnJournal   = 0x000900F4
	fsctlReadUsnJournal    = 0x000900BB
	fsctlGetNtfsFileRecord = 0x00090068
)

// ntfsFileRecordInputBuffer mirrors NTFS_FILE_RECORD_INPUT_BUFFER.
type ntfsFileRecordInputBuffer struct {
	FileReferenceNumber int64
}

// ntfsFileRecordOutputHeader mirrors the leading fields of
// NTFS_FILE_RECORD_OUTPUT_BUFFER; FileRecordBuffer follows immediately in
// the same allocation.
type ntfsFileRecordOutputHeader struct {
	FileReferenceNumber int64
	FileRecordLength    uint32
}

// ntfsVolumeDataBuffer mirrors NTFS_VOLUME_DATA_BUFFER's leading fields (the
// fields the engine needs; the full struct has more trailing fields we
// don't read).
type ntfsVolumeDataBuffer struct {
	VolumeSerialNumber      int64
	NumberSectors           int64
	TotalClusters           int64
	FreeClusters            int64
	TotalReserved           int64
	BytesPerSector          uint32
	BytesPerCluster         uint32
	BytesPerFileRecord      uint32
	ClustersPerFileRecord   uint32
	MftValidDataLength      int64
	MftStartLcn             int64
	Mft2StartLcn            int64
	MftZoneStart            int64
	MftZoneEnd              int64
}

type usnJournalData struct {
	UsnJournalID uint64
	FirstUsn     int64
	NextUsn      int64
	LowestValid  int64
	MaxUsn       int64
	MaxSize      uint64
	AllocDelta   uint64
}

type readUsnJournalData struct {
	StartUsn      int64
	ReasonMask    uint32
	ReturnOnlyOnClose uint32
	Timeout       uint64
	BytesToWaitFor uint64
	UsnJournalID  uint64
}

type winHandle struct {
	h           windows.Handle
	driveLetter byte
}

func (w *winHandle) Close() error        { return windows.CloseHandle(w.h) }
func (w *winHandle) NtfsMode() bool      { return true }
func (w *winHandle) DriveLetter() byte   { return w.driveLetter }

// WindowsReader is the production Reader, issuing real DeviceIoControl
// calls against \\.\X:.
type WindowsReader struct{}

// NewReader returns the platform Reader.
func NewReader() Reader { return WindowsReader{} }

func (WindowsReader) Open(ctx context.Context, driveLetter byte) (Handle, error) {
	path := fmt.Sprintf(`\\.\%c:`, driveLetter)
	pathPtr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, mfterrors.Wrap(mfterrors.KindInvalidArgument, "open", "bad drive letter", err)
	}

	open := func() (windows.Handle, error) {
		return windows.CreateFile(
			pathPtr,
			windows.GENERIC_READ,
			windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
			nil,
			windows.OPEN_EXISTING,
			0,
			0,
		)
	}
	h, err := open()
	if err != nil {
		switch err {
		case windows.ERROR_ACCESS_DENIED:
			return nil, mfterrors.Wrap(mfterrors.KindAccessDenied, "open", "administrative privilege required", err)
		case windows.ERROR_FILE_NOT_FOUND, windows.ERROR_PATH_NOT_FOUND:
			return nil, mfterrors.Wrap(mfterrors.KindNotFound, "open", "drive not found", err)
		default:
			// Retried once at the call site per spec §7; only a second
			// failure is classified and propagated.
			if h, err = open(); err != nil {
				return nil, mfterrors.Wrap(mfterrors.KindIoError, "open", "CreateFile failed", err)
			}
		}
	}
	return &winHandle{h: h, driveLetter: driveLetter}, nil
}

func (WindowsReader) QueryVolumeData(ctx context.Context, handle Handle) (VolumeData, error) {
	wh, ok := handle.(*winHandle)
	if !ok {
		return VolumeData{}, mfterrors.New(mfterrors.KindInvalidArgument, "query_volume_data", "not a windows handle")
	}

	var out ntfsVolumeDataBuffer
	var bytesReturned uint32
	call := func() error {
		return windows.DeviceIoControl(
			wh.h,
			fsctlGetNtfsVolumeData,
			nil, 0,
			(*byte)(unsafe.Pointer(&out)), uint32(unsafe.Sizeof(out)),
			&bytesReturned, nil,
		)
	}
	err := call()
	if err != nil && err != windows.ERROR_INVALID_FUNCTION {
		err = call() // retried once at the call site per spec §7
	}
	if err != nil {
		if err == windows.ERROR_INVALID_FUNCTION {
			return VolumeData{}, mfterrors.Wrap(mfterrors.KindNotNtfs, "query_volume_data", "volume is not NTFS", err)
		}
		return VolumeData{}, mfterrors.Wrap(mfterrors.KindIoError, "query_volume_data", "FSCTL_GET_NTFS_VOLUME_DATA failed", err)
	}

	return VolumeData{
		BytesPerCluster:        out.BytesPerCluster,
		MftValidLengthClusters: uint64(out.MftValidDataLength) / uint64(out.BytesPerCluster),
		MftStartLcn:            uint64(out.MftStartLcn),
		BytesPerFileRecord:     out.BytesPerFileRecord,
		VolumeSerial:           uint64(out.VolumeSerialNumber),
	}, nil
}

func (r WindowsReader) ReadMFTBytes(ctx context.Context, handle Handle, vd VolumeData) ([]byte, error) {
	wh, ok := handle.(*winHandle)
	if !ok {
		return nil, mfterrors.New(mfterrors.KindInvalidArgument, "read_mft_bytes", "not a windows handle")
	}

	total := vd.MftValidLengthClusters * uint64(vd.BytesPerCluster)
	startOffset := vd.MftStartLcn * uint64(vd.BytesPerCluster)

	buf := make([]byte, total)
	const chunkSize = 4 << 20 // 4MiB segments, per spec "may be segmented internally"

	var pos uint64
	for pos < total {
		n := chunkSize
		if uint64(n) > total-pos {
			n = int(total - pos)
		}

		overlapped := windows.Overlapped{
			Offset:     uint32(startOffset + pos),
			OffsetHigh: uint32((startOffset + pos) >> 32),
		}
		var bytesRead uint32
		err := windows.ReadFile(wh.h, buf[pos:pos+uint64(n)], &bytesRead, &overlapped)
		if err != nil {
			// Retried once at the call site per spec §7.
			err = windows.ReadFile(wh.h, buf[pos:pos+uint64(n)], &bytesRead, &overlapped)
		}
		if err != nil {
			return nil, mfterrors.Wrap(mfterrors.KindIoError, "read_mft_bytes", "ReadFile failed", err)
		}
		if bytesRead == 0 {
			break
		}
		pos += uint64(bytesRead)
	}
	return buf, nil
}

func (WindowsReader) QueryUSNJournal(ctx context.Context, handle Handle) (JournalData, error) {
	wh, ok := handle.(*winHandle)
	if !ok {
		return JournalData{}, mfterrors.New(mfterrors.KindInvalidArgument, "query_usn_journal", "not a windows handle")
	}

	var out usnJournalData
	var bytesReturned uint32
	call := func() error {
		return windows.DeviceIoControl(
			wh.h,
			fsctlQueryUsnJournal,
			nil, 0,
			(*byte)(unsafe.Pointer(&out)), uint32(unsafe.Sizeof(out)),
			&bytesReturned, nil,
		)
	}
	err := call()
	if err != nil {
		err = call() // retried once at the call site per spec §7
	}
	if err != nil {
		return JournalData{}, mfterrors.Wrap(mfterrors.KindIoError, "query_usn_journal", "FSCTL_QUERY_USN_JOURNAL failed", err)
	}

	return JournalData{
		JournalID:  out.UsnJournalID,
		FirstUSN:   out.FirstUsn,
		NextUSN:    out.NextUsn,
		MaxSize:    out.MaxSize,
		AllocDelta: int64(out.AllocDelta),
	}, nil
}

func (WindowsReader) ReadUSNRecords(ctx context.Context, handle Handle, startUSN int64, reasonMask USNReason, buf []byte) ([]USNRecord, int64, error) {
	wh, ok := handle.(*winHandle)
	if !ok {
		return nil, 0, mfterrors.New(mfterrors.KindInvalidArgument, "read_usn_records", "not a windows handle")
	}

	jd, err := WindowsReader{}.QueryUSNJournal(ctx, handle)
	if err != nil {
		return nil, 0, err
	}

	in := readUsnJournalData{
		StartUsn:     startUSN,
		ReasonMask:   uint32(reasonMask),
		UsnJournalID: jd.JournalID,
	}

	var bytesReturned uint32
	call := func() error {
		return windows.DeviceIoControl(
			wh.h,
			fsctlReadUsnJournal,
			(*byte)(unsafe.Pointer(&in)), uint32(unsafe.Sizeof(in)),
			&buf[0], uint32(len(buf)),
			&bytesReturned, nil,
		)
	}
	err = call()
	if err != nil {
		err = call() // retried once at the call site per spec §7
	}
	if err != nil {
		return nil, 0, mfterrors.Wrap(mfterrors.KindIoError, "read_usn_records", "FSCTL_READ_USN_JOURNAL failed", err)
	}
	if bytesReturned < 8 {
		return nil, startUSN, nil
	}

	nextUSN := int64(binary.LittleEndian.Uint64(buf[0:8]))
	records, err := parseUSNRecords(buf[8:bytesReturned])
	if err != nil {
		return nil, 0, mfterrors.Wrap(mfterrors.KindCorrupt, "read_usn_records", "malformed USN record stream", err)
	}
	return records, nextUSN, nil
}

// ReadFileRecord issues FSCTL_GET_NTFS_FILE_RECORD for fileRefID, returning
// the raw MFT record bytes for mft.ParseRecord. Used by the journal watcher
// to recover a file's current size after a DataExtend/DataTruncate record,
// since USN records themselves don't carry size.
func (WindowsReader) ReadFileRecord(ctx context.Context, handle Handle, fileRefID uint64, bytesPerRecord uint32) ([]byte, error) {
	wh, ok := handle.(*winHandle)
	if !ok {
		return nil, mfterrors.New(mfterrors.KindInvalidArgument, "read_file_record", "not a windows handle")
	}
	if bytesPerRecord == 0 {
		bytesPerRecord = 1024
	}

	in := ntfsFileRecordInputBuffer{FileReferenceNumber: int64(fileRefID)}
	headerSize := uint32(unsafe.Offsetof(ntfsFileRecordOutputHeader{}.FileRecordLength) + unsafe.Sizeof(uint32(0)))
	out := make([]byte, headerSize+bytesPerRecord)

	var bytesReturned uint32
	call := func() error {
		return windows.DeviceIoControl(
			wh.h,
			fsctlGetNtfsFileRecord,
			(*byte)(unsafe.Pointer(&in)), uint32(unsafe.Sizeof(in)),
			&out[0], uint32(len(out)),
			&bytesReturned, nil,
		)
	}
	err := call()
	if err != nil {
		err = call() // retried once at the call site per spec §7
	}
	if err != nil {
		return nil, mfterrors.Wrap(mfterrors.KindIoError, "read_file_record", "FSCTL_GET_NTFS_FILE_RECORD failed", err)
	}

	hdr := (*ntfsFileRecordOutputHeader)(unsafe.Pointer(&out[0]))
	recordLen := hdr.FileRecordLength
	if uint64(headerSize)+uint64(recordLen) > uint64(len(out)) {
		return nil, mfterrors.New(mfterrors.KindCorrupt, "read_file_record", "file record length exceeds buffer")
	}
	record := make([]byte, recordLen)
	copy(record, out[headerSize:uint64(headerSize)+uint64(recordLen)])
	return record, nil
}

// parseUSNRecords decodes a sequence of USN_RECORD_V2 structures.
func parseUSNRecords(buf []byte) ([]USNRecord, error) {
	var out []USNRecord
	pos := 0
	for pos+60 <= len(buf) {
		recordLength := binary.LittleEndian.Uint32(buf[pos : pos+4])
		if recordLength == 0 || pos+int(recordLength) > len(buf) {
			break
		}
		rec := buf[pos : pos+int(recordLength)]

		fileRefID := binary.LittleEndian.Uint64(rec[8:16]) & 0x0000FFFFFFFFFFFF
		parentRefID := binary.LittleEndian.Uint64(rec[16:24]) & 0x0000FFFFFFFFFFFF
		usn := int64(binary.LittleEndian.Uint64(rec[24:32]))
		reason := binary.LittleEndian.Uint32(rec[40:44])
		attrs := binary.LittleEndian.Uint32(rec[52:56])
		nameLength := binary.LittleEndian.Uint16(rec[56:58])
		nameOffset := binary.LittleEndian.Uint16(rec[58:60])

		var name string
		if int(nameOffset)+int(nameLength) <= len(rec) {
			name = decodeUTF16NameLE(rec[nameOffset : int(nameOffset)+int(nameLength)])
		}

		out = append(out, USNRecord{
			USN:         usn,
			FileRefID:   fileRefID,
			ParentRefID: parentRefID,
			Reason:      USNReason(reason),
			Name:        name,
			Attributes:  attrs,
		})
		pos += int(recordLength)
	}
	return out, nil
}

func decodeUTF16NameLE(b []byte) string {
	u16 := make([]uint16, len(b)/2)
	for i := range u16 {
		u16[i] = binary.LittleEndian.Uint16(b[i*2 : i*2+2])
	}
	return windows.UTF16ToString(u16)
}
