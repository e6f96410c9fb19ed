// Package generator builds an initial mind map from free text.
//
// Keywords is a dependency-free extractor: it scores candidate topics by
// frequency, weighting capitalized names above common nouns, and turns the
// strongest into branches of a single root. The adapters/openai package
// provides a model-backed alternative behind the same ports.Generator
// interface.
package generator
