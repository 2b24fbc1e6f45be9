package chef

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"
)

// Category is a test-case output stream.
type Category int

const (
	CategoryError Category = iota
	CategoryNewCFG
	CategoryNewPath
	CategoryAll
)

// Categories lists every category in emission order.
var Categories = []Category{CategoryError, CategoryNewCFG, CategoryNewPath, CategoryAll}

// String returns the stream name of the category.
func (c Category) String() string {
	switch c {
	case CategoryError:
		return "error"
	case CategoryNewCFG:
		return "new-cfg"
	case CategoryNewPath:
		return "new-path"
	case CategoryAll:
		return "all"
	default:
		return fmt.Sprintf("Category<%d>", int(c))
	}
}

// Filename returns the file name used for the category's output stream.
func (c Category) Filename() string {
	switch c {
	case CategoryError:
		return "err_test_cases.dat"
	case CategoryNewCFG:
		return "cfg_test_cases.dat"
	case CategoryNewPath:
		return "hl_test_cases.dat"
	default:
		return "all_test_cases.dat"
	}
}

// TestCase is one emitted record.
type TestCase struct {
	Category Category
	Path     PathID
	Elapsed  time.Duration // since session start
	PC       uint64
	Location Location
	Details  *TestCaseDetails
	Bindings []Binding
}

// TestCaseDetails holds optional distance diagnostics. Unknown distances are -1.
type TestCaseDetails struct {
	StartDist      int // dist_to_uncovered of the starting instruction
	TreeDivergence int // tree steps from the divergence marker to the starting node
	TreeMinDist    int // CFG distance between the same two instructions
	CFGDivergence  int
	CFGMinDist     int
	PendingMinDist int
	PendingMaxDist int
	ForkDepth      int // depth of the starting fork point
}

// TestCaseWriter receives emitted test cases.
type TestCaseWriter interface {
	WriteTestCase(tc *TestCase) error
}

// TextWriter writes one test case per line:
//
//	<usec> 0x<pc> <file>:<function>:<line> [details] name=>hex ...
type TextWriter struct {
	w *bufio.Writer
}

// NewTextWriter returns a writer that writes to w.
func NewTextWriter(w io.Writer) *TextWriter {
	return &TextWriter{w: bufio.NewWriter(w)}
}

// WriteTestCase writes tc and flushes the line.
func (w *TextWriter) WriteTestCase(tc *TestCase) error {
	if _, err := io.WriteString(w.w, FormatTestCase(tc)+"\n"); err != nil {
		return err
	}
	return w.w.Flush()
}

// FormatTestCase returns the text representation of tc without a newline.
func FormatTestCase(tc *TestCase) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d 0x%x %s", tc.Elapsed.Microseconds(), tc.PC, tc.Location)

	if d := tc.Details; d != nil {
		fmt.Fprintf(&sb, " %d %s %s %d %d %d",
			d.StartDist,
			formatDivergence(d.TreeDivergence, d.TreeMinDist),
			formatDivergence(d.CFGDivergence, d.CFGMinDist),
			d.PendingMinDist, d.PendingMaxDist,
			d.ForkDepth,
		)
	}

	for _, b := range tc.Bindings {
		fmt.Fprintf(&sb, " %s=>%s", b.Name, hex.EncodeToString(b.Value))
	}
	return sb.String()
}

func formatDivergence(dist, minDist int) string {
	if dist < 0 {
		return "-/-"
	}
	return fmt.Sprintf("%d/%d", dist, minDist)
}

// Outputs routes test cases to one writer per category. Nil writers discard.
type Outputs map[Category]TestCaseWriter

// WriteTestCase writes tc to the writer registered for its category.
func (o Outputs) WriteTestCase(tc *TestCase) error {
	w := o[tc.Category]
	if w == nil {
		return nil
	}
	if err := w.WriteTestCase(tc); err != nil {
		return fmt.Errorf("write %s test case: %w", tc.Category, err)
	}
	return nil
}
