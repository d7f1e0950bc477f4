// Package jsonreader flattens the JSON bodies returned by Alpaca instrument
// servers into an ordered keyword/value stream.
//
// Instrument servers answer with small, mostly flat objects. Callers do not
// care about nesting depth; they scan for known keywords and group the
// entries of the "Value" array into records. Parse therefore produces a
// slice of Tokens in document order with upper-cased keys, and marks array
// boundaries with three synthetic keys:
//
//	ARRAY       start of an array; Value holds the array's key
//	ARRAY-NEXT  end of one object inside an array
//	]           end of the array
//
// Any HTTP status line and headers in front of the body are skipped, as is
// anything else that precedes the first '{' or '['.
package jsonreader
