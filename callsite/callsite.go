// Package callsite carries the method metadata the monitor subsystem needs
// to turn a (method, program counter) pair into a source location for
// contention events and lock dumps.
//
// The execution engine owns the real method tables; this package only
// defines the slice of them the locking code reads. Translation is
// best-effort: a nil method or an empty line table yields the unknown
// location rather than an error, matching how dumps must keep working when
// no stack frame is available.
package callsite

// Method identifies a managed method for diagnostics. Immutable after
// construction by the class loader (external to this subsystem).
type Method struct {
	// Class and Name form the human-readable method identity, e.g.
	// "java.util.Hashtable" / "put".
	Class string
	Name  string

	// SourceFile is the declaring class' source file, empty if stripped.
	SourceFile string

	// LineTable maps program-counter ranges to source lines, sorted by
	// StartPC ascending. An entry covers [StartPC, nextEntry.StartPC).
	LineTable []LineEntry
}

// LineEntry is one row of a method's pc-to-line table.
type LineEntry struct {
	StartPC uint32
	Line    int
}

// Location is a resolved source position.
type Location struct {
	File string
	Line int
}

// unknownFile is reported when no metadata can resolve a pc.
const unknownFile = "<unknown>"

// FullName returns "Class.Name" for dump output.
func (m *Method) FullName() string {
	if m == nil {
		return "<no method>"
	}
	return m.Class + "." + m.Name
}

// Line resolves a program counter against the method's line table. Returns
// 0 when the table is empty or the pc precedes the first entry.
func (m *Method) Line(pc uint32) int {
	if m == nil {
		return 0
	}
	line := 0
	for _, e := range m.LineTable {
		if e.StartPC > pc {
			break
		}
		line = e.Line
	}
	return line
}

// TranslateLocation translates a method plus program counter into the
// declaring class' source file and line number. Either half may be missing;
// the result degrades to "<unknown>":0 instead of failing, since callers are
// always on a diagnostic path.
func TranslateLocation(m *Method, pc uint32) Location {
	if m == nil || m.SourceFile == "" {
		return Location{File: unknownFile}
	}
	return Location{File: m.SourceFile, Line: m.Line(pc)}
}

// StackVisitor is the stack-walking collaborator used by lock dumps. The
// engine positions the visitor on one frame of a suspended thread; the
// monitor code asks which frame it is looking at and who is walking.
type StackVisitor interface {
	// ThreadID is the 16-bit id of the thread whose stack is being walked.
	ThreadID() uint16

	// CurrentMethod returns the method of the visited frame, nil for
	// runtime-internal frames with no managed method.
	CurrentMethod() *Method

	// CurrentPC returns the program counter within the visited frame.
	CurrentPC() uint32
}
