package symbolmap

import (
	"fmt"
	"sort"

	"google.golang.org/protobuf/types/descriptorpb"
)

// MissingDependencyError is returned from Builder.Build when a file imports
// another file that was never added to the builder.
type MissingDependencyError struct {
	// Dependency is the name of the file that could not be found.
	Dependency string
	// ImportedBy is the name of a file that imports Dependency.
	ImportedBy string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("dependency %q was not found (imported by %q)", e.Dependency, e.ImportedBy)
}

// FQN returns the fully-qualified name of the element called name declared
// in the given scope. The scope is a package name or the fully-qualified name
// of an enclosing element, and may be empty.
func FQN(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// Builder accumulates symbols from proto files. The zero value is not usable;
// create one with NewBuilder. A Builder is not safe for concurrent use.
type Builder struct {
	symbols   map[string]string
	services  map[string]struct{}
	processed map[string]struct{}
	// dependency name -> first file seen importing it
	deps map[string]string
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		symbols:   map[string]string{},
		services:  map[string]struct{}{},
		processed: map[string]struct{}{},
		deps:      map[string]string{},
	}
}

// AddFiles adds each of the given files, keyed by its own name.
func (b *Builder) AddFiles(files ...*descriptorpb.FileDescriptorProto) {
	for _, fd := range files {
		b.Add(fd.GetName(), fd)
	}
}

// Add registers all symbols declared in fd as belonging to the file with the
// given name. If a file with that name was already added, this is a no-op, so
// it is fine to add a file both directly and as the dependency of another.
//
// If two files declare the same symbol, the one added last wins. Compiled
// file sets never do this.
func (b *Builder) Add(filename string, fd *descriptorpb.FileDescriptorProto) {
	if _, ok := b.processed[filename]; ok {
		return
	}
	b.processed[filename] = struct{}{}

	prefix := fd.GetPackage()
	for _, msg := range fd.GetMessageType() {
		b.addMessage(filename, prefix, msg)
	}
	for _, en := range fd.GetEnumType() {
		b.addEnum(filename, prefix, en)
	}
	for _, ext := range fd.GetExtension() {
		b.addField(filename, prefix, ext)
	}
	for _, svc := range fd.GetService() {
		b.addService(filename, prefix, svc)
	}
	for _, dep := range fd.GetDependency() {
		if _, ok := b.deps[dep]; !ok {
			b.deps[dep] = filename
		}
	}
}

func (b *Builder) addSymbol(filename, symbol string) {
	b.symbols[symbol] = filename
}

func (b *Builder) addMessage(filename, prefix string, msg *descriptorpb.DescriptorProto) {
	name := FQN(prefix, msg.GetName())
	b.addSymbol(filename, name)
	for _, nested := range msg.GetNestedType() {
		b.addMessage(filename, name, nested)
	}
	for _, en := range msg.GetEnumType() {
		b.addEnum(filename, name, en)
	}
	for _, ext := range msg.GetExtension() {
		b.addField(filename, name, ext)
	}
	for _, fld := range msg.GetField() {
		b.addField(filename, name, fld)
	}
	for _, oo := range msg.GetOneofDecl() {
		b.addSymbol(filename, FQN(name, oo.GetName()))
	}
}

func (b *Builder) addEnum(filename, prefix string, en *descriptorpb.EnumDescriptorProto) {
	name := FQN(prefix, en.GetName())
	b.addSymbol(filename, name)
	for _, val := range en.GetValue() {
		b.addSymbol(filename, FQN(name, val.GetName()))
	}
}

func (b *Builder) addField(filename, prefix string, fld *descriptorpb.FieldDescriptorProto) {
	b.addSymbol(filename, FQN(prefix, fld.GetName()))
}

func (b *Builder) addService(filename, prefix string, svc *descriptorpb.ServiceDescriptorProto) {
	name := FQN(prefix, svc.GetName())
	b.addSymbol(filename, name)
	b.services[name] = struct{}{}
	for _, mtd := range svc.GetMethod() {
		b.addSymbol(filename, FQN(name, mtd.GetName()))
	}
}

// Lookup returns the name of the file that declares the given symbol, among
// the files added so far. Unlike Build, it does not require the set of files
// to be closed under imports.
func (b *Builder) Lookup(symbol string) (string, bool) {
	file, ok := b.symbols[symbol]
	return file, ok
}

// Build verifies that every imported file was added and returns the
// resulting map. If some import was never added, it returns a
// *MissingDependencyError naming it. When several imports are missing, the
// one that sorts first is reported.
//
// The builder can keep being used after Build; later calls see any files
// added in between.
func (b *Builder) Build() (*SymbolMap, error) {
	var missing []string
	for dep := range b.deps {
		if _, ok := b.processed[dep]; !ok {
			missing = append(missing, dep)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &MissingDependencyError{Dependency: missing[0], ImportedBy: b.deps[missing[0]]}
	}

	m := &SymbolMap{
		symbols:  make(map[string]string, len(b.symbols)),
		services: make([]string, 0, len(b.services)),
		files:    make([]string, 0, len(b.processed)),
	}
	for sym, file := range b.symbols {
		m.symbols[sym] = file
	}
	for svc := range b.services {
		m.services = append(m.services, svc)
	}
	sort.Strings(m.services)
	for file := range b.processed {
		m.files = append(m.files, file)
	}
	sort.Strings(m.files)
	return m, nil
}

// SymbolMap is an immutable index of symbols to the files that declare them.
// It is safe for concurrent use.
type SymbolMap struct {
	symbols  map[string]string
	services []string
	files    []string
}

// FileContaining returns the name of the file that declares the given
// fully-qualified symbol.
func (m *SymbolMap) FileContaining(symbol string) (string, bool) {
	file, ok := m.symbols[symbol]
	return file, ok
}

// Services returns the fully-qualified names of all services, sorted.
func (m *SymbolMap) Services() []string {
	return append([]string(nil), m.services...)
}

// Files returns the names of all files that contributed to the map, sorted.
func (m *SymbolMap) Files() []string {
	return append([]string(nil), m.files...)
}

// Len returns the number of symbols in the map.
func (m *SymbolMap) Len() int {
	return len(m.symbols)
}

// Range calls fn for every symbol and its file, in symbol order, until fn
// returns false.
func (m *SymbolMap) Range(fn func(symbol, file string) bool) {
	syms := make([]string, 0, len(m.symbols))
	for sym := range m.symbols {
		syms = append(syms, sym)
	}
	sort.Strings(syms)
	for _, sym := range syms {
		if !fn(sym, m.symbols[sym]) {
			return
		}
	}
}
