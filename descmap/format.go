package descmap

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrCorrupt is returned (wrapped) by Load when the given data is not a valid
// descriptor table.
var ErrCorrupt = errors.New("corrupt descriptor table")

// field numbers of Table
const (
	tableFilesTag    protowire.Number = 1
	tableSymbolsTag  protowire.Number = 2
	tableServicesTag protowire.Number = 3
	tableBlobTag     protowire.Number = 4
)

// field numbers of FileEntry
const (
	fileNameTag   protowire.Number = 1
	fileOffsetTag protowire.Number = 2
	fileLengthTag protowire.Number = 3
	fileDepsTag   protowire.Number = 4
)

// field numbers of SymbolEntry
const (
	symbolNameTag protowire.Number = 1
	symbolFileTag protowire.Number = 2
)

type fileEntry struct {
	name   string
	offset uint64
	length uint64
	deps   []uint32
}

type symbolEntry struct {
	name string
	file uint32
}

type table struct {
	files    []fileEntry
	symbols  []symbolEntry
	services []string
	blob     []byte
}

func (t *table) marshal() []byte {
	var b []byte
	for i := range t.files {
		b = protowire.AppendTag(b, tableFilesTag, protowire.BytesType)
		b = protowire.AppendBytes(b, t.files[i].marshal())
	}
	for i := range t.symbols {
		b = protowire.AppendTag(b, tableSymbolsTag, protowire.BytesType)
		b = protowire.AppendBytes(b, t.symbols[i].marshal())
	}
	for _, svc := range t.services {
		b = protowire.AppendTag(b, tableServicesTag, protowire.BytesType)
		b = protowire.AppendString(b, svc)
	}
	b = protowire.AppendTag(b, tableBlobTag, protowire.BytesType)
	return protowire.AppendBytes(b, t.blob)
}

func (f *fileEntry) marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, fileNameTag, protowire.BytesType)
	b = protowire.AppendString(b, f.name)
	b = protowire.AppendTag(b, fileOffsetTag, protowire.VarintType)
	b = protowire.AppendVarint(b, f.offset)
	b = protowire.AppendTag(b, fileLengthTag, protowire.VarintType)
	b = protowire.AppendVarint(b, f.length)
	if len(f.deps) > 0 {
		var packed []byte
		for _, dep := range f.deps {
			packed = protowire.AppendVarint(packed, uint64(dep))
		}
		b = protowire.AppendTag(b, fileDepsTag, protowire.BytesType)
		b = protowire.AppendBytes(b, packed)
	}
	return b
}

func (s *symbolEntry) marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, symbolNameTag, protowire.BytesType)
	b = protowire.AppendString(b, s.name)
	b = protowire.AppendTag(b, symbolFileTag, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(s.file))
}

// errCodeIndexRange is returned by a fieldFunc for a file index that does not
// fit in 32 bits. It is below every protowire error code.
const errCodeIndexRange = -100

var errIndexRange = errors.New("file index out of range")

// consumeIndex is protowire.ConsumeVarint for file indexes.
func consumeIndex(b []byte) (uint32, int) {
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, n
	}
	if v > math.MaxUint32 {
		return 0, errCodeIndexRange
	}
	return uint32(v), n
}

// fieldFunc handles one field of a message. It returns the number of bytes
// of b consumed, a negative value as returned by the protowire consume
// functions (or errCodeIndexRange), or zero if it does not recognize the field.
type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) int

// walkFields calls fn for every field in b. Fields for which fn returns 0 are
// skipped, so readers tolerate fields added by newer writers.
func walkFields(b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		n = fn(num, typ, b)
		if n == 0 {
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n == errCodeIndexRange {
			return errIndexRange
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
	}
	return nil
}

func unmarshalTable(b []byte) (*table, error) {
	var t table
	var nestedErr error
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if typ != protowire.BytesType {
			return 0
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n
		}
		switch num {
		case tableFilesTag:
			f, err := unmarshalFileEntry(v)
			if err != nil {
				if nestedErr == nil {
					nestedErr = fmt.Errorf("file entry %d: %w", len(t.files), err)
				}
				return n
			}
			t.files = append(t.files, f)
		case tableSymbolsTag:
			s, err := unmarshalSymbolEntry(v)
			if err != nil {
				if nestedErr == nil {
					nestedErr = fmt.Errorf("symbol entry %d: %w", len(t.symbols), err)
				}
				return n
			}
			t.symbols = append(t.symbols, s)
		case tableServicesTag:
			t.services = append(t.services, string(v))
		case tableBlobTag:
			t.blob = v
		}
		return n
	})
	if err == nil {
		err = nestedErr
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func unmarshalFileEntry(b []byte) (fileEntry, error) {
	var f fileEntry
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch {
		case num == fileNameTag && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			f.name = v
			return n
		case num == fileOffsetTag && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			f.offset = v
			return n
		case num == fileLengthTag && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			f.length = v
			return n
		case num == fileDepsTag && typ == protowire.VarintType:
			v, n := consumeIndex(b)
			f.deps = append(f.deps, v)
			return n
		case num == fileDepsTag && typ == protowire.BytesType:
			packed, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n
			}
			for len(packed) > 0 {
				v, vn := consumeIndex(packed)
				if vn < 0 {
					return vn
				}
				f.deps = append(f.deps, v)
				packed = packed[vn:]
			}
			return n
		default:
			return 0
		}
	})
	return f, err
}

func unmarshalSymbolEntry(b []byte) (symbolEntry, error) {
	var s symbolEntry
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch {
		case num == symbolNameTag && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			s.name = v
			return n
		case num == symbolFileTag && typ == protowire.VarintType:
			v, n := consumeIndex(b)
			s.file = v
			return n
		default:
			return 0
		}
	})
	return s, err
}
