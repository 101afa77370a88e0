package camera

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DirDevice replays JPEG files from a directory in name order, one per Latest call.
// After the last file it keeps returning the last one.
type DirDevice struct {
	dir    string
	tracks atomic.Int32
}

// NewDirDevice creates a device reading from dir.
func NewDirDevice(dir string) *DirDevice {
	return &DirDevice{dir: dir}
}

func (d *DirDevice) list() ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("could not read frames directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg":
			files = append(files, filepath.Join(d.dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no JPEG frames in %s", d.dir)
	}
	slices.Sort(files)
	return files, nil
}

// Open implements Device.
func (d *DirDevice) Open(context.Context) (Stream, error) {
	files, err := d.list()
	if err != nil {
		return nil, err
	}
	d.tracks.Add(1)
	return &dirStream{dev: d, files: files}, nil
}

// ActiveTracks implements Device.
func (d *DirDevice) ActiveTracks() int {
	return int(d.tracks.Load())
}

// Frames returns the number of frames the device would replay.
func (d *DirDevice) Frames() int {
	files, err := d.list()
	if err != nil {
		return 0
	}
	return len(files)
}

type dirStream struct {
	dev   *DirDevice
	files []string

	mu     sync.Mutex
	next   int
	closed bool
}

func (s *dirStream) Latest() (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Frame{}, ErrNotOpen
	}

	i := min(s.next, len(s.files)-1)
	data, err := os.ReadFile(s.files[i])
	if err != nil {
		return Frame{}, fmt.Errorf("could not read frame: %w", err)
	}
	if s.next < len(s.files) {
		s.next++
	}
	return Frame{Data: data, At: time.Now()}, nil
}

func (s *dirStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.dev.tracks.Add(-1)
	return nil
}
