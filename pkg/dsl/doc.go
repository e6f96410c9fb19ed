/*
Package dsl provides a fluent builder for constructing mind maps in Go code.

It is an alternative to decoding a tree from JSON or YAML and is mostly used
in tests, examples and programs that assemble maps from their own data.

Example usage:

	root, err := dsl.Map("Alan Turing").
		Note("English mathematician").
		Child(
			dsl.Node("computer").Importance(6),
			dsl.Node("science").Importance(4),
		).
		Build()
	if err != nil {
		return err
	}

	eng := arbor.New()
	_ = eng.Load(root)

Nodes without an explicit ID receive one when Build runs, so the same
builder always yields the same IDs.
*/
package dsl
