package descmap

import (
	"fmt"
	"sort"
)

// Map answers queries for encoded file descriptors by symbol or by file name.
// It is immutable and safe for concurrent use without synchronization.
//
// The byte slices returned from queries share memory with the table the map
// was loaded from and with each other. They must not be modified.
type Map struct {
	files    []fileEntry
	symbols  []symbolEntry
	services []string
	blob     []byte
}

// Load decodes the index of the given descriptor table, as produced by Write
// or Marshal. The data is retained by the returned map and must not be
// modified afterwards.
func Load(data []byte) (*Map, error) {
	t, err := unmarshalTable(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := t.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &Map{
		files:    t.files,
		symbols:  t.symbols,
		services: t.services,
		blob:     t.blob,
	}, nil
}

func (t *table) validate() error {
	for i := range t.files {
		f := &t.files[i]
		if i > 0 && t.files[i-1].name >= f.name {
			return fmt.Errorf("file %q is out of order or duplicated", f.name)
		}
		if f.offset > uint64(len(t.blob)) || f.length > uint64(len(t.blob))-f.offset {
			return fmt.Errorf("file %q has range [%d, %d+%d) outside blob of size %d", f.name, f.offset, f.offset, f.length, len(t.blob))
		}
		for _, dep := range f.deps {
			if int(dep) >= len(t.files) {
				return fmt.Errorf("file %q refers to dependency %d but there are only %d files", f.name, dep, len(t.files))
			}
		}
	}
	for i := range t.symbols {
		s := &t.symbols[i]
		if i > 0 && t.symbols[i-1].name >= s.name {
			return fmt.Errorf("symbol %q is out of order or duplicated", s.name)
		}
		if int(s.file) >= len(t.files) {
			return fmt.Errorf("symbol %q refers to file %d but there are only %d files", s.name, s.file, len(t.files))
		}
	}
	if !sort.StringsAreSorted(t.services) {
		return fmt.Errorf("services are not sorted")
	}
	return nil
}

// BySymbol returns the encoded descriptor of the file that declares the given
// fully-qualified symbol, along with the encoded descriptors of all of its
// transitive dependencies. Every file appears after the files it imports, so
// the requested file is last. If the symbol is not known, it returns nil.
func (m *Map) BySymbol(symbol string) [][]byte {
	i := sort.Search(len(m.symbols), func(i int) bool {
		return m.symbols[i].name >= symbol
	})
	if i == len(m.symbols) || m.symbols[i].name != symbol {
		return nil
	}
	return m.closure(int(m.symbols[i].file))
}

// ByFilename returns the encoded descriptor of the file with the given name,
// along with the encoded descriptors of all of its transitive dependencies.
// Every file appears after the files it imports, so the requested file is
// last. If the file is not known, it returns nil.
func (m *Map) ByFilename(filename string) [][]byte {
	i := m.findFile(filename)
	if i < 0 {
		return nil
	}
	return m.closure(i)
}

func (m *Map) findFile(filename string) int {
	i := sort.Search(len(m.files), func(i int) bool {
		return m.files[i].name >= filename
	})
	if i == len(m.files) || m.files[i].name != filename {
		return -1
	}
	return i
}

// closure returns the file at index root and its transitive dependencies
// in depth-first post-order.
func (m *Map) closure(root int) [][]byte {
	visited := make([]bool, len(m.files))
	var result [][]byte
	var visit func(i int)
	visit = func(i int) {
		if visited[i] {
			return
		}
		visited[i] = true
		f := &m.files[i]
		for _, dep := range f.deps {
			visit(int(dep))
		}
		end := f.offset + f.length
		result = append(result, m.blob[f.offset:end:end])
	}
	visit(root)
	return result
}

// Services returns the fully-qualified names of all services declared in the
// table's files, sorted.
func (m *Map) Services() []string {
	return append([]string(nil), m.services...)
}

// Files returns the names of all files in the table, sorted.
func (m *Map) Files() []string {
	names := make([]string, len(m.files))
	for i := range m.files {
		names[i] = m.files[i].name
	}
	return names
}

// NumSymbols returns the number of symbols in the table.
func (m *Map) NumSymbols() int {
	return len(m.symbols)
}
