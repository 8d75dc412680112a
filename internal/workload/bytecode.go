package workload

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var bytecodeMagic = [4]byte{'H', 'P', 'B', 'C'}

const bytecodeVersion = 1

// ErrBadBytecode is returned for input that is not an encoded Script.
var ErrBadBytecode = errors.New("workload: malformed bytecode")

// Function is one compiled function of a Script.
type Function struct {
	Name string
	Code []byte
}

// Script is the decoded form of a bytecode blob.
type Script struct {
	Functions []Function
}

// CodeSize sums the code length of every function.
func (s *Script) CodeSize() int {
	n := 0
	for _, f := range s.Functions {
		n += len(f.Code)
	}
	return n
}

// EncodeBytecode serialises s.
//
//	magic[4] version[1] count(uvarint) { nameLen name codeLen code }*
func EncodeBytecode(s *Script) []byte {
	var buf bytes.Buffer
	buf.Write(bytecodeMagic[:])
	buf.WriteByte(bytecodeVersion)
	buf.Write(binary.AppendUvarint(nil, uint64(len(s.Functions))))
	for _, f := range s.Functions {
		buf.Write(binary.AppendUvarint(nil, uint64(len(f.Name))))
		buf.WriteString(f.Name)
		buf.Write(binary.AppendUvarint(nil, uint64(len(f.Code))))
		buf.Write(f.Code)
	}
	return buf.Bytes()
}

// DecodeBytecode parses data produced by EncodeBytecode, checking ctx
// between functions.
func DecodeBytecode(ctx context.Context, data []byte) (*Script, error) {
	r := bytes.NewReader(data)

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil || magic != bytecodeMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrBadBytecode)
	}
	version, err := r.ReadByte()
	if err != nil || version != bytecodeVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadBytecode, version)
	}

	count, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("%w: function count: %v", ErrBadBytecode, err)
	}
	if count > uint64(r.Len()) {
		return nil, fmt.Errorf("%w: %d functions in %d bytes", ErrBadBytecode, count, r.Len())
	}

	s := &Script{Functions: make([]Function, 0, count)}
	for i := range count {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name, err := readChunk(r)
		if err != nil {
			return nil, fmt.Errorf("%w: function %d name: %v", ErrBadBytecode, i, err)
		}
		code, err := readChunk(r)
		if err != nil {
			return nil, fmt.Errorf("%w: function %d code: %v", ErrBadBytecode, i, err)
		}
		s.Functions = append(s.Functions, Function{Name: string(name), Code: code})
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrBadBytecode, r.Len())
	}
	return s, nil
}

func readChunk(r *bytes.Reader) ([]byte, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	if n > uint64(r.Len()) {
		return nil, io.ErrUnexpectedEOF
	}
	b := make([]byte, n)
	_, err = io.ReadFull(r, b)
	return b, err
}
