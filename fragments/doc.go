// Package fragments provides the byte-level primitives that back a DBus
// [Encoder] and [Decoder]: alignment padding, the fixed-width integer
// encodings, length-prefixed strings, and the bookkeeping needed to open,
// abandon, and close array/struct containers.
//
// It knows nothing about Go reflection or about the higher-level Argument
// vocabulary used elsewhere in this module; it only knows how to turn
// primitive values into correctly padded bytes and back. Everything above
// this package (signatures, the Argument capability, Message iterators)
// is built out of these primitives.
package fragments
