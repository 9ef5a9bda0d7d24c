/*
Package loader compiles widget source into factories.

Widget source is a bare function body that ends in `return <renderable>`. It
is wrapped as the body of a function whose parameters are exactly the
capability set (see Params), parsed with goja's parser, checked to be that one
declaration and nothing else, then compiled once per distinct source string.

	l := loader.New()
	f, err := l.Load("return host.text('hi');")
	var cerr *loader.CompileError
	if errors.As(err, &cerr) {
		// render the compilation fallback
	}
*/
package loader
