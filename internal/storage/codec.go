package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// writeFrame writes an 8-byte big-endian length prefix followed by body,
// the length-framed wire format spec §4.6/§6.2 describes ("protobuf is a
// natural choice; any canonical, self-describing encoding works" — JSON
// is used here for the reason recorded in DESIGN.md's RPC entry).
func writeFrame(w io.Writer, body []byte) error {
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// readFrame reads one length-framed body, or io.EOF at a clean boundary.
func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint64(lenBuf[:])
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("storage: short frame body: %w", err)
	}
	return body, nil
}

func encodeRecordJSON(rec Record) ([]byte, error) {
	return json.Marshal(rec)
}

// WriteRecord encodes rec and writes it length-framed to w.
func WriteRecord(w io.Writer, rec Record) error {
	body, err := encodeRecordJSON(rec)
	if err != nil {
		return err
	}
	return writeFrame(w, body)
}

// ReadRecord reads and decodes the next length-framed record from r.
func ReadRecord(r io.Reader) (Record, error) {
	body, err := readFrame(r)
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}
