// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package retained

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"

	"github.com/relabs-tech/smartbin/internal/weight"
)

const recordMagic uint32 = 0x53425254 // "SBRT"

// record is the on-disk layout. Offsets are stored as reals, like the RTC
// slots of the ESP32 board; float64 holds any 24-bit ADC offset exactly.
type record struct {
	Magic      uint32
	SleepHours float64
	Offsets    [weight.ChannelCount]float64
	TareEpoch  uint32
}

// recordSize is the framed size: record followed by its CRC32.
var recordSize = binary.Size(record{}) + 4

// FileStore keeps the record in a small file. Writes go to a temporary file
// that is synced and renamed over the old record, so a power cut leaves
// either the previous or the new record, never a mix.
type FileStore struct {
	path string
}

// NewFileStore returns a store at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load returns the zero State when no record exists.
func (f *FileStore) Load() (State, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, nil
		}
		return State{}, fmt.Errorf("read retained record: %w", err)
	}
	return decode(data)
}

// Save overwrites the record.
func (f *FileStore) Save(st State) error {
	data, err := encode(st)
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create retained dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".retained-*")
	if err != nil {
		return fmt.Errorf("create retained temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write retained record: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync retained record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close retained record: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace retained record: %w", err)
	}
	return nil
}

func encode(st State) ([]byte, error) {
	rec := record{
		Magic:      recordMagic,
		SleepHours: st.SleepHours,
		TareEpoch:  st.TareEpoch,
	}
	for i, o := range st.Offsets {
		rec.Offsets[i] = float64(o)
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, rec); err != nil {
		return nil, fmt.Errorf("encode retained record: %w", err)
	}
	sum := crc32.ChecksumIEEE(buf.Bytes())
	if err := binary.Write(&buf, binary.LittleEndian, sum); err != nil {
		return nil, fmt.Errorf("encode retained record: %w", err)
	}
	return buf.Bytes(), nil
}

func decode(data []byte) (State, error) {
	if len(data) != recordSize {
		return State{}, fmt.Errorf("%w: size %d, want %d", ErrCorrupt, len(data), recordSize)
	}
	body, tail := data[:recordSize-4], data[recordSize-4:]
	if crc32.ChecksumIEEE(body) != binary.LittleEndian.Uint32(tail) {
		return State{}, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	var rec record
	if err := binary.Read(bytes.NewReader(body), binary.LittleEndian, &rec); err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if rec.Magic != recordMagic {
		return State{}, fmt.Errorf("%w: bad magic 0x%08X", ErrCorrupt, rec.Magic)
	}

	st := State{SleepHours: rec.SleepHours, TareEpoch: rec.TareEpoch}
	for i, o := range rec.Offsets {
		st.Offsets[i] = int64(o)
	}
	return st, nil
}
