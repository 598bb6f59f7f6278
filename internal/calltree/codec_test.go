package calltree

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/getsentry/calltree/internal/errorutil"
	"github.com/getsentry/calltree/internal/testutil"
)

func TestRoundTrip(t *testing.T) {
	live := newMockTree(t)
	read, err := Decode(Encode(live))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := testutil.Diff(read, live); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
	if !read.Frozen() {
		t.Fatal("decoded tree should be frozen")
	}

	liveNodes, readNodes := live.Nodes(), read.Nodes()
	if len(liveNodes) != len(readNodes) {
		t.Fatalf("got %d nodes, want %d", len(readNodes), len(liveNodes))
	}
	for i := range liveNodes {
		if liveNodes[i].Name() != readNodes[i].Name() ||
			liveNodes[i].StartNS() != readNodes[i].StartNS() ||
			liveNodes[i].EndNS() != readNodes[i].EndNS() {
			t.Fatalf("node %d: got %s %d#%d, want %s %d#%d", i,
				readNodes[i].Name(), readNodes[i].StartNS(), readNodes[i].EndNS(),
				liveNodes[i].Name(), liveNodes[i].StartNS(), liveNodes[i].EndNS())
		}
	}
}

func TestEncodeIsStableAcrossDecode(t *testing.T) {
	text := Encode(newMockTree(t))
	read, err := Decode(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := Encode(read); got != text {
		t.Fatalf("re-encoded text differs:\n%s\nwant:\n%s", got, text)
	}
}

func TestEncodeFormat(t *testing.T) {
	tree := NewTree("worker 7")
	tree.SetClock(tickClock())
	a, _ := tree.BeginCall("a", 1, 2)
	b, _ := tree.BeginCall("b")
	_ = b.End()
	_ = a.End()

	root := tree.Root()
	na := root.Children()[0]
	nb := na.Children()[0]
	want := fmt.Sprintf("[worker 7, %d, %d#-1]: (a{1,2}, %d)\n", root.Hash(), root.StartNS(), na.Hash()) +
		fmt.Sprintf("|  [a{1,2}, %d, 1#4]: (b{}, %d)\n", na.Hash(), nb.Hash()) +
		fmt.Sprintf("|  |  [b{}, %d, 2#3]: \n", nb.Hash())
	if got := Encode(tree); got != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}
	if tree.String() != want {
		t.Fatal("String should match Encode")
	}
	var sb strings.Builder
	n, err := tree.WriteTo(&sb)
	if err != nil || sb.String() != want || n != int64(len(want)) {
		t.Fatalf("WriteTo wrote %d bytes (%v):\n%s", n, err, sb.String())
	}
}

func TestDecodeNamesWithSeparators(t *testing.T) {
	tree := NewTree("pool, thread 3")
	call, _ := tree.BeginCall("(*Server).handle", "a,b", "x#y", "[1 2]")
	inner, _ := tree.BeginCall("f", "(nested)")
	_ = inner.End()
	_ = call.End()

	read, err := Decode(Encode(tree))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !read.Equal(tree) {
		t.Fatalf("got:\n%s\nwant:\n%s", read, tree)
	}
	if got := read.Root().Children()[0].FunctionName(); got != "(*Server).handle" {
		t.Fatalf("got function name %q", got)
	}
}

func TestDecodeAcceptsTrailingNewlinesAndCRLF(t *testing.T) {
	text := Encode(newMockTree(t))
	for _, in := range []string{
		text + "\n",
		strings.ReplaceAll(text, "\n", "\r\n"),
		strings.TrimSuffix(text, "\n"),
	} {
		if _, err := Decode(in); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}

func TestDecodeFrozenTree(t *testing.T) {
	read, err := Decode(Encode(newMockTree(t)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := read.BeginCall("late"); !errors.Is(err, ErrFrozenTree) {
		t.Fatalf("expected ErrFrozenTree, got %v", err)
	}
	if err := read.EndCall(); !errors.Is(err, ErrIllegalState) {
		t.Fatalf("expected ErrIllegalState, got %v", err)
	}
}

// simpleTree returns the text of root -> (x, y -> z).
func simpleTree(t *testing.T) (string, *Tree) {
	tree := NewTree("main 1")
	tree.SetClock(tickClock())
	x, _ := tree.BeginCall("x")
	_ = x.End()
	y, _ := tree.BeginCall("y")
	z, _ := tree.BeginCall("z")
	_ = z.End()
	_ = y.End()
	return Encode(tree), tree
}

func TestDecodeErrors(t *testing.T) {
	text, tree := simpleTree(t)
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	root := tree.Root()
	x, y := root.Children()[0], root.Children()[1]
	rootHash := fmt.Sprint(root.Hash())
	xTitle := fmt.Sprintf("(x{}, %d)", x.Hash())
	yTitle := fmt.Sprintf("(y{}, %d)", y.Hash())

	replaceLine := func(i int, line string) string {
		out := append([]string{}, lines...)
		out[i] = line
		return strings.Join(out, "\n") + "\n"
	}

	tests := []struct {
		name    string
		input   string
		wantMsg string
	}{
		{
			name:    "empty input",
			input:   "  \n",
			wantMsg: "empty input",
		},
		{
			name:    "missing opening bracket",
			input:   replaceLine(1, strings.Replace(lines[1], "[", "", 1)),
			wantMsg: "malformed header",
		},
		{
			name:    "missing closing delimiter",
			input:   replaceLine(0, strings.Replace(lines[0], "]:", "]", 1)),
			wantMsg: "malformed header",
		},
		{
			name:    "reordered children",
			input:   replaceLine(0, strings.Replace(lines[0], xTitle+", "+yTitle, yTitle+", "+xTitle, 1)),
			wantMsg: "child title mismatch",
		},
		{
			name:    "corrupted root hash",
			input:   replaceLine(0, strings.Replace(lines[0], rootHash, flipDigit(rootHash), 1)),
			wantMsg: "hash mismatch",
		},
		{
			name:    "corrupted child hash in header",
			input:   replaceLine(1, strings.Replace(lines[1], fmt.Sprint(x.Hash()), flipDigit(fmt.Sprint(x.Hash())), 1)),
			wantMsg: "child title mismatch",
		},
		{
			name:    "renamed child",
			input:   replaceLine(3, strings.Replace(lines[3], "[z{}", "[w{}", 1)),
			wantMsg: "child title mismatch",
		},
		{
			name:    "non numeric hash",
			input:   replaceLine(0, strings.Replace(lines[0], rootHash, "abc", 1)),
			wantMsg: "invalid hash",
		},
		{
			name:    "non numeric start time",
			input:   replaceLine(1, strings.Replace(lines[1], ", 1#", ", one#", 1)),
			wantMsg: "invalid start time",
		},
		{
			name:    "non numeric end time",
			input:   replaceLine(1, strings.Replace(lines[1], "#2]", "#two]", 1)),
			wantMsg: "invalid end time",
		},
		{
			name:    "missing execution time separator",
			input:   replaceLine(1, strings.Replace(lines[1], "1#2", "12", 1)),
			wantMsg: "malformed execution time",
		},
		{
			name:    "truncated input",
			input:   strings.Join(lines[:3], "\n") + "\n",
			wantMsg: "unexpected end of input",
		},
		{
			name:    "trailing data",
			input:   text + "[extra, 1, 0#0]: \n",
			wantMsg: "unexpected data after the root block",
		},
		{
			name:    "unbalanced child list",
			input:   replaceLine(0, lines[0]+"(dangling"),
			wantMsg: "unbalanced child list",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := Decode(test.input)
			if got != nil {
				t.Fatal("no tree should be returned on failure")
			}
			if !errors.Is(err, ErrFileParse) {
				t.Fatalf("expected ErrFileParse, got %v", err)
			}
			if !errors.Is(err, errorutil.ErrDataIntegrity) {
				t.Fatalf("expected ErrDataIntegrity, got %v", err)
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected a *ParseError, got %T", err)
			}
			if !strings.HasPrefix(pe.Msg, test.wantMsg) {
				t.Fatalf("got message %q, want %q", pe.Msg, test.wantMsg)
			}
		})
	}
}

func TestDecodeDetectsEveryHashDigitFlip(t *testing.T) {
	text := Encode(newMockTree(t))
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	for i, line := range lines {
		start := strings.IndexByte(line, '[')
		end := strings.Index(line, "]:")
		desc := line[start+1 : end]
		j := strings.LastIndexByte(desc, ',')
		k := strings.LastIndexByte(desc[:j], ',')
		hash := strings.TrimSpace(desc[k+1 : j])
		for d := 0; d < len(hash); d++ {
			if hash[d] < '0' || hash[d] > '9' {
				continue
			}
			corrupted := hash[:d] + flipDigit(hash[d:d+1]) + hash[d+1:]
			out := append([]string{}, lines...)
			out[i] = line[:start+1] + desc[:k+2] + corrupted + desc[j:] + line[end:]
			if _, err := Decode(strings.Join(out, "\n")); !errors.Is(err, ErrFileParse) {
				t.Fatalf("line %d digit %d: expected ErrFileParse, got %v", i+1, d, err)
			}
		}
	}
}

func flipDigit(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= '0' && c <= '9' {
			b[i] = '0' + (c-'0'+1)%10
			return string(b)
		}
	}
	return s
}
