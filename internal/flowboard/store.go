package flowboard

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrInvalidEvent   = errors.New("invalid event type")
	ErrNotImplemented = errors.New("not implemented")
)

// Document names inside the blob store.
const (
	DocBoard        = "board"
	DocEvents       = "events"
	DocActivity     = "activity"
	DocMessages     = "messages"
	DocMemory       = "memory"
	DocDeliverables = "deliverables"
)

type StoreOptions struct {
	Blobs BlobStore
	// DataDir backs a JSONFileBlobStore when Blobs is nil.
	DataDir string
	// SessionsDir holds the external agent's .jsonl transcripts.
	SessionsDir string
	// WorkspaceDir holds the agent's editable .md files.
	WorkspaceDir string
	// MemoryDir holds DD-MM-YYYY.md daily logs. Defaults to
	// WorkspaceDir/memory.
	MemoryDir string
	// MemoryScanInterval enables the background daily-log rescan when
	// positive. Zero leaves scanning to explicit refresh calls.
	MemoryScanInterval time.Duration
	Clock              func() time.Time
}

// Store is the composition root for the board pipeline: it owns the blob
// store, the event bus and every log writer. All document access is
// read-whole/write-whole with a per-document lock; there are no
// transactions across documents.
type Store struct {
	blobs        BlobStore
	bus          *EventBus
	sessionsDir  string
	workspaceDir string
	memoryDir    string
	now          func() time.Time

	boardMu    sync.Mutex
	activityMu sync.Mutex
	messagesMu sync.Mutex
	memoryMu   sync.Mutex

	scanStop chan struct{}
	scanDone chan struct{}
}

func NewStore() *Store {
	return NewStoreWithOptions(StoreOptions{})
}

func NewStoreWithOptions(opts StoreOptions) *Store {
	blobs := opts.Blobs
	if blobs == nil {
		if opts.DataDir != "" {
			blobs = NewJSONFileBlobStore(opts.DataDir)
		} else {
			blobs = NewInMemoryBlobStore()
		}
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	memoryDir := opts.MemoryDir
	if memoryDir == "" && opts.WorkspaceDir != "" {
		memoryDir = opts.WorkspaceDir + "/memory"
	}
	s := &Store{
		blobs:        blobs,
		sessionsDir:  opts.SessionsDir,
		workspaceDir: opts.WorkspaceDir,
		memoryDir:    memoryDir,
		now:          clock,
	}
	s.bus = NewEventBus(blobs, clock)
	s.registerActivityHandlers()
	if opts.MemoryScanInterval > 0 {
		s.scanStop = make(chan struct{})
		s.scanDone = make(chan struct{})
		go s.memoryScanLoop(opts.MemoryScanInterval)
	}
	return s
}

// Bus exposes the event bus for additional subscribers (live feeds).
// Subscriptions must be registered before traffic starts.
func (s *Store) Bus() *EventBus {
	return s.bus
}

func (s *Store) Close() {
	if s.scanStop != nil {
		close(s.scanStop)
		<-s.scanDone
		s.scanStop = nil
	}
	if closer, ok := s.blobs.(blobStoreCloser); ok {
		_ = closer.Close()
	}
}

func (s *Store) memoryScanLoop(interval time.Duration) {
	defer close(s.scanDone)
	if err := s.ScanDailyLogs(); err != nil {
		log.Printf("initial daily-log scan failed: %v", err)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.scanStop:
			return
		case <-ticker.C:
			if err := s.ScanDailyLogs(); err != nil {
				log.Printf("scheduled daily-log scan failed: %v", err)
			}
		}
	}
}

// RawDocument returns the stored bytes of a document without decoding,
// for endpoints that serve a log verbatim.
func (s *Store) RawDocument(name string) ([]byte, error) {
	return s.blobs.Get(name)
}

// loadDoc decodes a document into v. A missing or corrupt document yields
// false and leaves v at its caller-provided default; corruption is logged
// and never surfaces to the request.
func (s *Store) loadDoc(name string, v any) bool {
	return loadDoc(s.blobs, name, v)
}

func (s *Store) saveDoc(name string, v any) error {
	return saveDoc(s.blobs, name, v)
}

func loadDoc(blobs BlobStore, name string, v any) bool {
	data, err := blobs.Get(name)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Printf("read %s: %v", name, err)
		}
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		log.Printf("corrupt %s document, using defaults: %v", name, err)
		return false
	}
	return true
}

func saveDoc(blobs BlobStore, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return blobs.Put(name, data)
}

func newID(prefix string) string {
	return prefix + "_" + ulid.Make().String()
}

func timestamp(now func() time.Time) string {
	return now().UTC().Format(time.RFC3339Nano)
}

// parseTimestamp is tolerant: log entries may carry timestamps from the
// external transcript source. Unparseable values sort to the zero time.
func parseTimestamp(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	return time.Time{}
}
