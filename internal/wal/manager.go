package wal

import (
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"go.uber.org/multierr"
)

var (
	ErrBadCRC     = errors.New("wal: bad crc")
	ErrBadRecord  = errors.New("wal: bad record")
	ErrNoWALFile  = errors.New("wal: journal is closed")
	ErrEmptyEntry = errors.New("wal: empty command")
)

// Record is one journaled command.
type Record struct {
	LSN     uint64
	Command string
}

// Manager is an append-only command journal. Each record is one text line:
//
//	<lsn>\t<crc32 of command, hex>\t<command, Go-quoted>
//
// Commands are written before they are applied. The journal is an audit trail;
// nothing replays it on open.
type Manager struct {
	mu   sync.Mutex
	fs   afero.Fs
	f    afero.File
	path string
	lsn  uint64
	sync bool
}

// Open opens (creating if absent) the journal at path. When syncEach is set
// every Append is followed by an fsync.
func Open(fs afero.Fs, path string, syncEach bool) (*Manager, error) {
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := fs.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	m := &Manager{fs: fs, f: f, path: path, sync: syncEach}
	if err := m.initLastLSN(); err != nil {
		return nil, multierr.Append(err, f.Close())
	}
	return m, nil
}

func (m *Manager) Path() string { return m.path }

// LastLSN returns the LSN of the last appended record, 0 if none.
func (m *Manager) LastLSN() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lsn
}

// Append writes cmd as the next record and returns its LSN.
func (m *Manager) Append(cmd string) (uint64, error) {
	if strings.TrimSpace(cmd) == "" {
		return 0, ErrEmptyEntry
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.f == nil {
		return 0, ErrNoWALFile
	}

	lsn := m.lsn + 1
	line := encodeRecord(Record{LSN: lsn, Command: cmd})
	if _, err := m.f.Write([]byte(line)); err != nil {
		return 0, err
	}
	if m.sync {
		if err := m.f.Sync(); err != nil {
			return 0, err
		}
	}
	m.lsn = lsn
	return lsn, nil
}

func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.f == nil {
		return nil
	}
	err := multierr.Combine(m.f.Sync(), m.f.Close())
	m.f = nil
	return err
}

// ReadAll reads every record of the journal in order. A torn last line
// (no trailing newline) is ignored.
func (m *Manager) ReadAll() ([]Record, error) {
	m.mu.Lock()
	fs, path := m.fs, m.path
	m.mu.Unlock()
	return ReadFile(fs, path)
}

// ReadFile reads the journal at path without opening it for writing.
func ReadFile(fs afero.Fs, path string) ([]Record, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	lines := strings.Split(string(data), "\n")
	// whatever follows the last newline is empty or a torn tail record
	lines = lines[:len(lines)-1]

	out := make([]Record, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		rec, err := decodeRecord(line)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func encodeRecord(r Record) string {
	crc := crc32.ChecksumIEEE([]byte(r.Command))
	return fmt.Sprintf("%d\t%08x\t%s\n", r.LSN, crc, strconv.Quote(r.Command))
}

func decodeRecord(line string) (Record, error) {
	parts := strings.SplitN(line, "\t", 3)
	if len(parts) != 3 {
		return Record{}, ErrBadRecord
	}
	lsn, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: lsn: %v", ErrBadRecord, err)
	}
	wantCRC, err := strconv.ParseUint(parts[1], 16, 32)
	if err != nil {
		return Record{}, fmt.Errorf("%w: crc: %v", ErrBadRecord, err)
	}
	cmd, err := strconv.Unquote(parts[2])
	if err != nil {
		return Record{}, fmt.Errorf("%w: command: %v", ErrBadRecord, err)
	}
	if crc32.ChecksumIEEE([]byte(cmd)) != uint32(wantCRC) {
		return Record{}, ErrBadCRC
	}
	return Record{LSN: lsn, Command: cmd}, nil
}

func (m *Manager) initLastLSN() error {
	recs, err := ReadFile(m.fs, m.path)
	if err != nil {
		return err
	}
	for _, r := range recs {
		if r.LSN > m.lsn {
			m.lsn = r.LSN
		}
	}
	return nil
}
