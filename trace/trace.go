// Package trace reads, writes and generates memory reference traces.
//
// A trace has one reference per line:
//
//	<proc> <op> <addr>
//
// where op is r, R, LOAD or ld for loads and w, W, STORE or st for stores,
// and addr is hexadecimal with an optional 0x prefix. Text after # and blank
// lines are ignored.
package trace

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sarchlab/cohsim/coherence"
)

// Reference is one memory access of one processor.
type Reference struct {
	Proc int
	Kind coherence.MsgKind
	Addr uint64
}

func (r Reference) String() string {
	op := "r"
	if r.Kind == coherence.Store {
		op = "w"
	}

	return fmt.Sprintf("%d %s 0x%x", r.Proc, op, r.Addr)
}

// ParseError reports a malformed trace line.
type ParseError struct {
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("trace line %d %q: %v", e.Line, e.Text, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseFile reads a trace file.
func ParseFile(path string) ([]Reference, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Parse(f)
}

// Parse reads a trace.
func Parse(r io.Reader) ([]Reference, error) {
	var refs []Reference

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++

		text := scanner.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}

		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}

		ref, err := parseFields(fields)
		if err != nil {
			return nil, &ParseError{Line: lineNo, Text: scanner.Text(), Err: err}
		}

		refs = append(refs, ref)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return refs, nil
}

func parseFields(fields []string) (Reference, error) {
	if len(fields) != 3 {
		return Reference{}, fmt.Errorf("expected 3 fields, got %d", len(fields))
	}

	proc, err := strconv.Atoi(fields[0])
	if err != nil || proc < 0 {
		return Reference{}, fmt.Errorf("bad processor %q", fields[0])
	}

	kind, err := ParseOp(fields[1])
	if err != nil {
		return Reference{}, err
	}

	addrText := strings.TrimPrefix(strings.ToLower(fields[2]), "0x")
	addr, err := strconv.ParseUint(addrText, 16, 64)
	if err != nil {
		return Reference{}, fmt.Errorf("bad address %q", fields[2])
	}

	return Reference{Proc: proc, Kind: kind, Addr: addr}, nil
}

// ParseOp converts an operation mnemonic into a LOAD or STORE.
func ParseOp(op string) (coherence.MsgKind, error) {
	switch strings.ToLower(op) {
	case "r", "load", "ld":
		return coherence.Load, nil
	case "w", "store", "st":
		return coherence.Store, nil
	default:
		return coherence.KindInvalid, fmt.Errorf("bad operation %q", op)
	}
}

// Write prints references in the trace format.
func Write(w io.Writer, refs []Reference) error {
	bw := bufio.NewWriter(w)
	for _, r := range refs {
		if _, err := fmt.Fprintln(bw, r); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// MaxProc returns the largest processor index in the trace, or -1 for an
// empty trace.
func MaxProc(refs []Reference) int {
	maxProc := -1
	for _, r := range refs {
		if r.Proc > maxProc {
			maxProc = r.Proc
		}
	}

	return maxProc
}

// SplitByProc groups references by processor, keeping their order.
func SplitByProc(refs []Reference, procs int) ([][]Reference, error) {
	perProc := make([][]Reference, procs)
	for _, r := range refs {
		if r.Proc >= procs {
			return nil, fmt.Errorf(
				"reference %q uses processor %d, but only %d processors exist",
				r, r.Proc, procs)
		}

		perProc[r.Proc] = append(perProc[r.Proc], r)
	}

	return perProc, nil
}
