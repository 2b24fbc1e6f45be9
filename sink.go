package chef

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DumpSink creates destinations for diagnostic graph dumps.
type DumpSink interface {
	Create(name string) (io.WriteCloser, error)
}

// DirSink writes each dump to a new numbered file in Dir.
type DirSink struct {
	Dir string
	seq int
}

// NewDirSink returns a sink writing into dir.
func NewDirSink(dir string) *DirSink {
	return &DirSink{Dir: dir}
}

// Create opens "<seq>_<name>" inside the sink's directory.
func (s *DirSink) Create(name string) (io.WriteCloser, error) {
	if err := os.MkdirAll(s.Dir, 0777); err != nil {
		return nil, err
	}
	s.seq++
	return os.Create(filepath.Join(s.Dir, fmt.Sprintf("%04d_%s", s.seq, name)))
}

// OutputFiles holds the per-category test-case files of a session.
type OutputFiles struct {
	files   []*os.File
	Outputs Outputs
}

// OpenOutputFiles creates one text test-case file per category in dir.
func OpenOutputFiles(dir string) (*OutputFiles, error) {
	if err := os.MkdirAll(dir, 0777); err != nil {
		return nil, err
	}

	o := &OutputFiles{Outputs: make(Outputs)}
	for _, c := range Categories {
		f, err := os.Create(filepath.Join(dir, c.Filename()))
		if err != nil {
			o.Close()
			return nil, fmt.Errorf("open %s output: %w", c, err)
		}
		o.files = append(o.files, f)
		o.Outputs[c] = NewTextWriter(f)
	}
	return o, nil
}

// Close closes every file and returns the first error.
func (o *OutputFiles) Close() (err error) {
	for _, f := range o.files {
		if e := f.Close(); e != nil && err == nil {
			err = e
		}
	}
	o.files = nil
	return err
}
