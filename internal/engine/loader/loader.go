package loader

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dop251/goja"
	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/file"
	"github.com/dop251/goja/parser"
)

// Params is the capability set bound into every factory, in call order.
var Params = []string{
	"host",
	"useState",
	"useEffect",
	"useRef",
	"useMemo",
	"useCallback",
	"icons",
	"proxyFetch",
	"props",
}

const (
	binding  = "__widgetFactory"
	filename = "widget.js"
)

// header shares the first line with the source so line numbers line up with
// what the author wrote; first-line columns are shifted back by sourcePos.
var header = "var " + binding + " = function (" + strings.Join(Params, ", ") + ") {"

// CompileError reports source that cannot become a factory. Message is the
// raw parser or compiler message.
type CompileError struct {
	Message string
}

func (e *CompileError) Error() string {
	return e.Message
}

// Factory is a compiled widget source. The zero program marks the empty
// sentinel, which renders nothing.
type Factory struct {
	Source  string
	program *goja.Program
}

// Empty reports whether f is the sentinel for blank source.
func (f *Factory) Empty() bool {
	return f.program == nil
}

// Instantiate evaluates the compiled wrapper in vm and returns the factory
// function. It must run on the goroutine that owns vm.
func (f *Factory) Instantiate(vm *goja.Runtime) (goja.Callable, error) {
	if f.Empty() {
		return nil, fmt.Errorf("instantiate: empty factory")
	}
	if _, err := vm.RunProgram(f.program); err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(vm.Get(binding))
	if !ok {
		return nil, fmt.Errorf("instantiate: %s is not a function", binding)
	}
	if err := vm.Set(binding, goja.Undefined()); err != nil {
		return nil, err
	}
	return fn, nil
}

// Wrap returns the program text compiled for source.
func Wrap(source string) string {
	return header + source + "\n};"
}

// Compile turns source into a factory. Whitespace-only source yields the
// empty sentinel.
func Compile(source string) (*Factory, error) {
	if strings.TrimSpace(source) == "" {
		return &Factory{Source: source}, nil
	}

	prg, err := parser.ParseFile(nil, filename, Wrap(source), 0)
	if err != nil {
		return nil, compileError(err)
	}
	if err := checkShape(prg); err != nil {
		return nil, err
	}

	program, err := goja.CompileAST(prg, false)
	if err != nil {
		return nil, compileError(err)
	}
	return &Factory{Source: source, program: program}, nil
}

// compileError reports err with positions relative to the author's source.
func compileError(err error) *CompileError {
	var list parser.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		for _, e := range list {
			e.Position = sourcePos(e.Position)
		}
		return &CompileError{Message: list.Error()}
	}
	var syntax *goja.CompilerSyntaxError
	if errors.As(err, &syntax) && syntax.File != nil {
		pos := sourcePos(syntax.File.Position(syntax.Offset))
		return &CompileError{Message: fmt.Sprintf("SyntaxError: %s at %s", syntax.Message, pos)}
	}
	return &CompileError{Message: err.Error()}
}

// sourcePos maps a position in the wrapped program to the author's source.
func sourcePos(pos file.Position) file.Position {
	if pos.Line == 1 && pos.Column > len(header) {
		pos.Column -= len(header)
	}
	return pos
}

// checkShape rejects source that closes the wrapper early and appends its own
// statements; the program must be exactly the one factory declaration.
func checkShape(prg *ast.Program) error {
	escaped := &CompileError{Message: "SyntaxError: widget source must be a single function body; unexpected code after the closing brace"}
	if len(prg.Body) != 1 {
		return escaped
	}
	decl, ok := prg.Body[0].(*ast.VariableStatement)
	if !ok || len(decl.List) != 1 {
		return escaped
	}
	if _, ok := decl.List[0].Initializer.(*ast.FunctionLiteral); !ok {
		return escaped
	}
	return nil
}

// Loader memoises Compile on the source string. One loader belongs to one
// widget instance.
type Loader struct {
	mu       sync.Mutex
	source   string
	loaded   bool
	factory  *Factory
	err      error
	compiles int
}

// New creates an empty loader.
func New() *Loader {
	return &Loader{}
}

// Load returns the factory for source, compiling only when source differs
// from the previous call. A cached failure is returned as-is.
func (l *Loader) Load(source string) (*Factory, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.loaded && l.source == source {
		return l.factory, l.err
	}

	l.factory, l.err = Compile(source)
	l.source = source
	l.loaded = true
	if strings.TrimSpace(source) != "" {
		l.compiles++
	}
	return l.factory, l.err
}

// Compiles counts actual parses performed by this loader.
func (l *Loader) Compiles() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.compiles
}
