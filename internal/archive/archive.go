package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/saviobatista/globe-worker/internal/types"
)

const (
	filePrefix = "points_"
	fileSuffix = ".jsonl"
)

// Record is one archived points batch
type Record struct {
	Time   time.Time     `json:"time"`
	Points []types.Point `json:"points"`
}

// Archive appends points batches to daily JSON lines files and gzips
// each day's file after midnight UTC
type Archive struct {
	outputDir string
	file      *os.File
	day       string
	now       func() time.Time
	mu        sync.Mutex
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// New creates a new Archive writing under outputDir
func New(outputDir string) *Archive {
	return &Archive{
		outputDir: outputDir,
		now:       time.Now,
		stopChan:  make(chan struct{}),
	}
}

// Start creates the output directory, opens today's file and starts the rotation timer
func (a *Archive) Start() error {
	if err := os.MkdirAll(a.outputDir, 0o750); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	a.mu.Lock()
	err := a.rotateFile()
	if err == nil {
		// Files left over from earlier runs
		// Failures are already logged per file
		_ = a.compressOlder()
	}
	a.mu.Unlock()
	if err != nil {
		return err
	}

	a.wg.Add(1)
	go a.rotationTimer()

	return nil
}

// Stop closes the current file and stops the rotation timer
func (a *Archive) Stop() error {
	select {
	case <-a.stopChan:
	default:
		close(a.stopChan)
	}
	a.wg.Wait()

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.file != nil {
		err := a.file.Close()
		a.file = nil
		return err
	}
	return nil
}

// WriteBatch appends a points batch as one JSON line
func (a *Archive) WriteBatch(at time.Time, points []types.Point) error {
	if points == nil {
		points = []types.Point{}
	}
	line, err := json.Marshal(Record{Time: at.UTC(), Points: points})
	if err != nil {
		return fmt.Errorf("failed to marshal archive record: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.file == nil || a.day != a.today() {
		if err := a.rotateFile(); err != nil {
			return err
		}
	}

	if _, err := a.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write archive record: %w", err)
	}
	return nil
}

// rotationTimer handles daily rotation at midnight UTC
func (a *Archive) rotationTimer() {
	defer a.wg.Done()

	for {
		now := a.now().UTC()
		nextMidnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)

		select {
		case <-time.After(nextMidnight.Sub(now)):
			if err := a.rotateAndCompress(); err != nil {
				log.Printf("Warning: archive rotation failed: %v", err)
			}
		case <-a.stopChan:
			return
		}
	}
}

// rotateAndCompress opens today's file and compresses every earlier day's file
func (a *Archive) rotateAndCompress() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.rotateFile(); err != nil {
		return err
	}
	return a.compressOlder()
}

// compressOlder gzips archive files from days before the current one.
// A file that fails is logged and skipped; the failures are returned joined.
func (a *Archive) compressOlder() error {
	matches, err := filepath.Glob(filepath.Join(a.outputDir, filePrefix+"*"+fileSuffix))
	if err != nil {
		return err
	}

	current := a.path(a.day)
	var errs []error
	for _, path := range matches {
		if path == current {
			continue
		}
		if err := compressFile(path); err != nil {
			log.Printf("Warning: failed to compress %s: %v", filepath.Base(path), err)
			errs = append(errs, fmt.Errorf("failed to compress %s: %w", filepath.Base(path), err))
		}
	}
	return errors.Join(errs...)
}

// compressFile replaces path with a gzipped copy at path.gz
func compressFile(path string) error {
	source, err := os.Open(path) // #nosec G304 - path comes from the archive directory listing
	if err != nil {
		return err
	}
	defer source.Close()

	target, err := os.Create(path + ".gz") // #nosec G304 - derived from the archive directory listing
	if err != nil {
		return err
	}
	defer target.Close()

	gzipWriter := gzip.NewWriter(target)
	gzipWriter.Name = filepath.Base(path)
	if _, err := io.Copy(gzipWriter, source); err != nil {
		return err
	}
	if err := gzipWriter.Close(); err != nil {
		return err
	}
	if err := target.Close(); err != nil {
		return err
	}

	return os.Remove(path)
}

// rotateFile closes the open file and opens the one for the current day.
// The caller must hold a.mu.
func (a *Archive) rotateFile() error {
	if a.file != nil {
		if err := a.file.Close(); err != nil {
			log.Printf("Warning: failed to close archive file: %v", err)
		}
		a.file = nil
	}

	day := a.today()
	file, err := os.OpenFile(a.path(day), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open archive file: %w", err)
	}

	a.file = file
	a.day = day
	return nil
}

func (a *Archive) today() string {
	return a.now().UTC().Format("2006-01-02")
}

func (a *Archive) path(day string) string {
	return filepath.Join(a.outputDir, filePrefix+day+fileSuffix)
}

// CurrentFile returns the path of the file being written, or "" if none is open
func (a *Archive) CurrentFile() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return ""
	}
	return a.path(a.day)
}
