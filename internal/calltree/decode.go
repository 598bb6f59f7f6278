package calltree

import (
	"io"
	"strconv"
	"strings"
)

// cursor is a position in the text being decoded.
type cursor struct {
	off  int
	line int
}

// Decode parses text produced by Encode. The returned tree is frozen. Any
// structural problem yields a *ParseError and no tree.
func Decode(text string) (*Tree, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &ParseError{Msg: "empty input"}
	}
	root, _, cur, err := decodeNode(text, cursor{line: 1}, "")
	if err != nil {
		return nil, err
	}
	if rest := text[cur.off:]; strings.TrimSpace(rest) != "" {
		return nil, &ParseError{Line: cur.line, Msg: "unexpected data after the root block", Actual: firstLine(rest)}
	}
	t := newTree(root)
	t.last = linkNext(root, nil)
	t.frozen = true
	return t, nil
}

// ReadTree reads all of r and decodes it.
func ReadTree(r io.Reader) (*Tree, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Decode(string(b))
}

// linkNext chains n and its descendants in pre-order after last and returns
// the last node of the chain.
func linkNext(n, last *Node) *Node {
	if last != nil {
		last.next = n
	}
	last = n
	for _, c := range n.children {
		last = linkNext(c, last)
	}
	return last
}

// decodeNode parses the block starting at cur. expected is the title the
// parent declared for this node, empty for the root. It returns the node, its
// verified hash and the position right after its block.
func decodeNode(text string, cur cursor, expected string) (*Node, int32, cursor, error) {
	line, next, ok := readLine(text, cur)
	if !ok {
		return nil, 0, cur, &ParseError{Line: cur.line, Msg: "unexpected end of input", Expected: expected}
	}

	start := strings.IndexByte(line, '[')
	end := strings.Index(line, "]:")
	if start == -1 || end == -1 || end < start {
		return nil, 0, cur, &ParseError{Line: cur.line, Msg: "malformed header", Actual: line}
	}
	desc := line[start+1 : end]
	if expected != "" && !strings.HasPrefix(desc, expected+", ") {
		return nil, 0, cur, &ParseError{Line: cur.line, Msg: "child title mismatch", Expected: expected, Actual: desc}
	}

	name, declared, startNS, endNS, err := parseDescriptor(desc)
	if err != nil {
		err.Line = cur.line
		return nil, 0, cur, err
	}
	titles, ok := childTitles(line[end+2:])
	if !ok {
		return nil, 0, cur, &ParseError{Line: cur.line, Msg: "unbalanced child list", Actual: line[end+2:]}
	}

	n, _ := newNodeWithEnd(name, DefaultShift, startNS, endNS)
	hashes := make([]int32, 0, len(titles))
	for _, title := range titles {
		var (
			child *Node
			h     int32
			cerr  error
		)
		child, h, next, cerr = decodeNode(text, next, title)
		if cerr != nil {
			return nil, 0, cur, cerr
		}
		n.appendChild(child)
		hashes = append(hashes, h)
	}

	computed := combineHash(name, childrenHash(hashes))
	if computed != declared {
		return nil, 0, cur, &ParseError{
			Line:     cur.line,
			Msg:      "hash mismatch for " + strconv.Quote(name),
			Expected: strconv.FormatInt(int64(declared), 10),
			Actual:   strconv.FormatInt(int64(computed), 10),
		}
	}
	return n, computed, next, nil
}

// parseDescriptor splits "name, hash, start#end" from the right so that
// names may contain commas.
func parseDescriptor(desc string) (string, int32, int64, int64, *ParseError) {
	i := strings.LastIndexByte(desc, ',')
	if i == -1 {
		return "", 0, 0, 0, &ParseError{Msg: "malformed descriptor", Actual: desc}
	}
	j := strings.LastIndexByte(desc[:i], ',')
	if j == -1 {
		return "", 0, 0, 0, &ParseError{Msg: "malformed descriptor", Actual: desc}
	}
	name := desc[:j]
	times := strings.TrimSpace(desc[i+1:])
	k := strings.IndexByte(times, '#')
	if k == -1 {
		return "", 0, 0, 0, &ParseError{Msg: "malformed execution time", Actual: times}
	}

	hashText := strings.TrimSpace(desc[j+1 : i])
	hash, err := strconv.ParseInt(hashText, 10, 32)
	if err != nil {
		return "", 0, 0, 0, &ParseError{Msg: "invalid hash", Actual: hashText, Err: err}
	}
	startNS, err := strconv.ParseInt(strings.TrimSpace(times[:k]), 10, 64)
	if err != nil {
		return "", 0, 0, 0, &ParseError{Msg: "invalid start time", Actual: times[:k], Err: err}
	}
	endNS, err := strconv.ParseInt(strings.TrimSpace(times[k+1:]), 10, 64)
	if err != nil {
		return "", 0, 0, 0, &ParseError{Msg: "invalid end time", Actual: times[k+1:], Err: err}
	}
	return name, int32(hash), startNS, endNS, nil
}

// childTitles extracts the content of every top-level parenthesized group,
// in order. It reports false if the parentheses don't balance.
func childTitles(s string) ([]string, bool) {
	var (
		titles  []string
		balance int
		from    int
	)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			if balance == 0 {
				from = i + 1
			}
			balance++
		case ')':
			balance--
			if balance < 0 {
				return nil, false
			}
			if balance == 0 {
				titles = append(titles, s[from:i])
			}
		}
	}
	return titles, balance == 0
}

func readLine(text string, cur cursor) (string, cursor, bool) {
	if cur.off >= len(text) {
		return "", cur, false
	}
	rest := text[cur.off:]
	i := strings.IndexByte(rest, '\n')
	next := cursor{off: len(text), line: cur.line + 1}
	if i != -1 {
		rest = rest[:i]
		next.off = cur.off + i + 1
	}
	return strings.TrimSuffix(rest, "\r"), next, true
}

func firstLine(s string) string {
	s = strings.TrimLeft(s, " \t\r\n")
	if i := strings.IndexByte(s, '\n'); i != -1 {
		s = s[:i]
	}
	return strings.TrimSuffix(s, "\r")
}
