package workload

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utkarsh5026/helperpool/internal/arena"
)

func TestCompressRoundTrip(t *testing.T) {
	src := []byte(strings.Repeat("function add(a, b) { return a + b; }\n", 4000))

	out, err := Compress(context.Background(), src)
	require.NoError(t, err)
	assert.Less(t, len(out), len(src)/10, "repetitive source compresses well")

	back, err := Decompress(out)
	require.NoError(t, err)
	assert.Equal(t, src, back)
}

func TestCompressHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Compress(ctx, bytes.Repeat([]byte("x"), compressChunk*2))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecompressRejectsTruncatedStream(t *testing.T) {
	out, err := Compress(context.Background(), []byte(strings.Repeat("var x = 1;\n", 1000)))
	require.NoError(t, err)

	_, err = Decompress(out[:len(out)/2])
	assert.Error(t, err)
}

func TestBytecode(t *testing.T) {
	s := &Script{Functions: []Function{
		{Name: "main", Code: []byte{0x01, 0x02, 0x03}},
		{Name: "helper", Code: nil},
		{Name: "", Code: bytes.Repeat([]byte{0xAB}, 300)},
	}}

	got, err := DecodeBytecode(context.Background(), EncodeBytecode(s))
	require.NoError(t, err)
	require.Len(t, got.Functions, 3)
	assert.Equal(t, "main", got.Functions[0].Name)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, got.Functions[0].Code)
	assert.Equal(t, 303, got.CodeSize())

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad magic", []byte("XXXX\x01\x00")},
		{"bad version", []byte("HPBC\x09\x00")},
		{"count too large", []byte("HPBC\x01\x7f")},
		{"truncated", EncodeBytecode(s)[:12]},
		{"trailing bytes", append(EncodeBytecode(s), 0x00)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeBytecode(context.Background(), tt.data)
			assert.ErrorIs(t, err, ErrBadBytecode)
		})
	}
}

func TestScan(t *testing.T) {
	script := `// comment with function keyword
function a() { return "import"; }
/* multi
   line */
const b = function () {};
`
	res, err := Scan(context.Background(), []byte(script), false)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Functions, "keywords in comments and strings are ignored")
	assert.Equal(t, 6, res.Lines)
	assert.Positive(t, res.Tokens)

	module := "import x from 'x';\nexport function f() {}\nexport const y = `a\nb`;\n"
	res, err = Scan(context.Background(), []byte(module), true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imports)
	assert.Equal(t, 2, res.Exports)
	assert.Equal(t, 1, res.Functions)
	assert.Equal(t, 5, res.Lines)

	errorCases := map[string]string{
		"import in script":      "import x from 'x';",
		"unterminated string":   "const s = 'abc\n';",
		"unterminated comment":  "/* never closed",
		"invalid utf8":          "const s = \xff;",
		"unterminated template": "`abc",
	}
	for name, src := range errorCases {
		t.Run(name, func(t *testing.T) {
			_, err := Scan(context.Background(), []byte(src), false)
			assert.ErrorIs(t, err, ErrSyntax)
		})
	}
}

func TestDelazifierSteps(t *testing.T) {
	s := &Script{}
	for i := range 10 {
		s.Functions = append(s.Functions, Function{Name: strings.Repeat("f", i+1), Code: []byte{byte(i)}})
	}
	d := NewDelazifier(s, 4)

	steps := 0
	for {
		done, err := d.Step(context.Background())
		require.NoError(t, err)
		steps++
		if done {
			break
		}
	}
	assert.Equal(t, 3, steps)
	assert.Equal(t, int64(10), d.Compiled())
	assert.NotZero(t, d.Digest())

	again := NewDelazifier(s, 100)
	done, err := again.Step(context.Background())
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, d.Digest(), again.Digest(), "batching does not change the result")
}

func TestSweepArena(t *testing.T) {
	h := NewHeap(2, 8, 2)
	require.Equal(t, 2, h.Arenas())

	require.NoError(t, h.SweepArena(0)(context.Background()))
	// Odd cells are garbage: sizes 32 and 128, twice each.
	assert.Equal(t, int64(2*(32+128)), h.Freed())

	require.NoError(t, h.SweepArena(0)(context.Background()))
	assert.Equal(t, int64(2*(32+128)+16+64+16+64), h.Freed(), "marks are cleared by the first sweep")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, h.SweepArena(1)(ctx), context.Canceled)
}

func TestCompileIR(t *testing.T) {
	a, err := arena.New(ArenaSizeFor(100))
	require.NoError(t, err)
	defer a.Release()

	require.NoError(t, CompileIR(100)(context.Background(), a))
	assert.Equal(t, 100*irNodeSize, a.Used())

	small, err := arena.New(4096)
	require.NoError(t, err)
	defer small.Release()
	assert.ErrorIs(t, CompileIR(100000)(context.Background(), small), arena.ErrExhausted)
}
