package evd

import "errors"

// ErrPayloadDecode reports a decrypted PIR payload coefficient that rounded
// to a value outside {0, 1, -1, -2}. It signals an integrity anomaly and
// fails the single retrieve.
var ErrPayloadDecode = errors.New("pir payload decode: rounded value out of range")
