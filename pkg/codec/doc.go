// Package codec's three serializer tags each trade off differently:
//
//	BinaryContractless (encoding/gob): no method requirements on K or V,
//	    reflection does all the work. Slowest of the three but the only
//	    one that handles arbitrary struct graphs out of the box.
//
//	BinaryContract (encoding.BinaryMarshaler/BinaryUnmarshaler): requires
//	    *V to implement the contract explicitly. Fastest and most compact,
//	    at the cost of writing MarshalBinary/UnmarshalBinary by hand.
//
//	JsonUtf8 (encoding/json): human-readable, no method requirements,
//	    useful for CLI tooling and debugging over raw performance.
//
// None of the three is hard-coded as a third-party dependency: spec.md
// treats the serializer as an external collaborator a caller plugs in, so
// this package only wires stdlib encodings rather than pulling in a
// specific serialization library.
package codec
