// Package evidence turns external inputs into usage evidence maps.
//
// FromRequest extracts evidence from an incoming *http.Request using the key scheme the
// share-usage filter understands: "header.<name>", "query.<name>", "cookie.<name>" and
// "server.client-ip". Header and query names are lower-cased.
//
// YAMLSource reads evidence recorded as a multi-document YAML stream, one mapping per
// document, which is how captured evidence files are distributed:
//
//	src := evidence.NewYAMLSource(f)
//	for {
//		ev, err := src.Next()
//		if errors.Is(err, io.EOF) {
//			break
//		}
//		...
//	}
//
// Middleware wires FromRequest into an http.Handler chain so every request is offered to a
// ShareUsage instance.
package evidence
