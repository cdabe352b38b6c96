// Package bencode implements the serialisation format that nREPL peers use to
// frame every message on the wire.
//
// The format has four kinds of values:
//
// - integers     `i<digits>e`, e.g. `i42e`, `i-7e`
// - byte strings `<length>:<bytes>`, e.g. `4:spam`, `0:`
// - lists        `l<value>*e`, e.g. `li1e1:ae`
// - dictionaries `d(<byte string><value>)*e`, e.g. `d2:op5:clonee`
//
// === Go representation
//
//   ```
//     integer     int64, or *big.Int when it does not fit in 64 bits
//     byte string string when it is valid UTF-8, []byte otherwise
//     list        []interface{}
//     dictionary  *Dict
//   ```
//
// The encoder also accepts the other Go integer types, []byte, []string,
// map[string]interface{} and map[string]string.
//
// === Key order
//
// A *Dict remembers the order its keys were set in, and the encoder writes keys
// in exactly that order. Canonical bencode requires keys to be sorted; nREPL
// peers do not, and we reproduce what they send rather than reordering it. Plain
// Go maps have no order so they are written with sorted keys.
//
// === Streams
//
// There is no envelope around values on the wire, messages are simply written
// back to back. A Decoder reads one top-level value per call to Decode until the
// underlying reader is exhausted.
package bencode
