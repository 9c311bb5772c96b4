// Package logstore implements C3: one logical append-only log per
// (tenant, node, kind), stored as newline-delimited JSON. Records are
// encoded with encoding/json, not passed through package canonicalize.
// Append is one O_APPEND write plus fsync under the log's mutex; no temp
// file or rename is used. Readers get a
// constant-memory streaming iterator and a count-only scan; load-all is
// reserved for callers that mutate the whole list (assembly, commit).
//
// Grounded on the teacher's store/ledger.FileLedger atomic-write pattern
// and store/audit_store.go / store/outbox_store.go, which hand-roll their
// file writes — no NDJSON append-log library appears
// anywhere in the example pack, so this stays on the standard library by
// the teacher's own idiom.
package logstore

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/distributed-credibility/mesh/core/pkg/meshrr"
)

// Key identifies one logical log.
type Key struct {
	Tenant string
	Node   string
	Kind   string
}

func (k Key) filename() string {
	return fmt.Sprintf("%s__%s__%s.ndjson", sanitize(k.Tenant), sanitize(k.Node), sanitize(k.Kind))
}

// Filename returns the on-disk file name Store uses for k, relative to
// the store's root directory — exported for callers (tests, offline
// tooling) that need to locate a log file without going through Store.
func (k Key) Filename() string {
	return k.filename()
}

func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

// Log is a single append-only NDJSON file with a dedicated append mutex
// (spec §5: "one worker per log writer, serializes appends to that log").
type Log struct {
	path string
	mu   sync.Mutex
}

// Store opens (and creates on demand) logs rooted at dir.
type Store struct {
	dir  string
	mu   sync.Mutex
	logs map[Key]*Log
}

// Open creates a Store rooted at dir, creating the directory if needed.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, meshrr.Wrap(meshrr.KindFilesystem, err, "logstore: mkdir")
	}
	return &Store{dir: dir, logs: make(map[Key]*Log)}, nil
}

// Log returns (creating if necessary) the log for key.
func (s *Store) Log(key Key) *Log {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.logs[key]; ok {
		return l
	}
	l := &Log{path: filepath.Join(s.dir, key.filename())}
	s.logs[key] = l
	return l
}

// Append writes one record, encoded with encoding/json, as a new line: the
// whole line goes out in a single O_APPEND write guarded by the log's
// mutex, then the file is fsync'd. No temp file and no rename are used; a
// temp-file-and-rename of the WHOLE file would defeat true append-only
// semantics (concurrent readers would see a vanished file mid-rename).
// Serializing every append through the mutex matches the teacher's
// FileLedger pattern of routing all mutation through a single writer,
// adapted from whole-file rewrite to line-append.
func (l *Log) Append(record interface{}) error {
	b, err := marshalLine(record)
	if err != nil {
		return meshrr.Wrap(meshrr.KindInputInvalid, err, "logstore: marshal record")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return meshrr.Wrap(meshrr.KindFilesystem, err, "logstore: open for append")
	}
	defer f.Close()

	if _, err := f.Write(b); err != nil {
		return meshrr.Wrap(meshrr.KindFilesystem, err, "logstore: write")
	}
	if err := f.Sync(); err != nil {
		return meshrr.Wrap(meshrr.KindFilesystem, err, "logstore: fsync")
	}
	return nil
}

func marshalLine(record interface{}) ([]byte, error) {
	b, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// Iterator streams lines with constant memory. Callers MUST call Close.
type Iterator struct {
	f       *os.File
	scanner *bufio.Scanner
	line    int
}

// Iterate opens a streaming, restartable (Seek-based cursor is the caller's
// responsibility via line number) reader over the log. It is finite: bounded
// by the file's current length at open time.
func (l *Log) Iterate() (*Iterator, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			empty, cerr := os.Create(l.path)
			if cerr != nil {
				return nil, meshrr.Wrap(meshrr.KindFilesystem, cerr, "logstore: create empty log")
			}
			empty.Close()
			f, err = os.Open(l.path)
			if err != nil {
				return nil, meshrr.Wrap(meshrr.KindFilesystem, err, "logstore: open")
			}
		} else {
			return nil, meshrr.Wrap(meshrr.KindFilesystem, err, "logstore: open")
		}
	}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &Iterator{f: f, scanner: sc}, nil
}

// Next decodes the next record into dest (a pointer). Returns io.EOF when
// exhausted.
func (it *Iterator) Next(dest interface{}) error {
	if !it.scanner.Scan() {
		if err := it.scanner.Err(); err != nil {
			return meshrr.Wrap(meshrr.KindCorrupt, err, "logstore: scan")
		}
		return io.EOF
	}
	it.line++
	line := it.scanner.Bytes()
	if len(line) == 0 {
		return it.Next(dest) // tolerate trailing blank lines
	}
	if err := json.Unmarshal(line, dest); err != nil {
		return meshrr.Wrap(meshrr.KindCorrupt, err, fmt.Sprintf("logstore: parse line %d", it.line))
	}
	return nil
}

// Line returns the 1-based line number of the last record returned by Next
// — usable as a restart cursor.
func (it *Iterator) Line() int { return it.line }

// Close releases the underlying file handle.
func (it *Iterator) Close() error { return it.f.Close() }

// Count performs a streaming count-only scan without allocating per-record
// structures — constant memory regardless of log size.
func (l *Log) Count() (int, error) {
	it, err := l.Iterate()
	if err != nil {
		return 0, err
	}
	defer it.Close()

	n := 0
	var raw json.RawMessage
	for {
		err := it.Next(&raw)
		if err == io.EOF {
			break
		}
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// LoadAll reads every record into memory. Callers MUST only use this for
// whole-list mutation (assembly, commit) per §4.3 — never for routine scans,
// which should use Iterate or Count.
func (l *Log) LoadAll(newElem func() interface{}) ([]interface{}, error) {
	it, err := l.Iterate()
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []interface{}
	for {
		elem := newElem()
		err := it.Next(elem)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, elem)
	}
	return out, nil
}
