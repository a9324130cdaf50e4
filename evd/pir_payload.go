package evd

import (
	"fmt"
	"math"

	"github.com/snuhcs-course/swpp-2025-project-team-07/ring"
	"github.com/snuhcs-course/swpp-2025-project-team-07/rlwe"
)

// EncodePIRPayload encodes up to PIRPayloadSize bytes into a degree-N
// plaintext polynomial, two bits per coefficient mapped onto the signed
// alphabet {0, 1, -1, -2}, and transforms it to the NTT domain. Shorter
// payloads are zero padded.
func (c *Client) EncodePIRPayload(payload []byte, res *ring.Poly) error {
	if len(payload) > rlwe.PIRPayloadSize {
		return fmt.Errorf("payload size %d exceeds %d bytes", len(payload), rlwe.PIRPayloadSize)
	}

	res.Zero()
	res.IsNTT = false

	coeff := 0
	for byteIdx := 0; byteIdx < rlwe.PIRPayloadSize; byteIdx++ {
		var b byte
		if byteIdx < len(payload) {
			b = payload[byteIdx]
		}
		for bitPair := 0; bitPair < 4; bitPair++ {
			twoBits := uint64(b>>(bitPair*2)) & 3
			if twoBits > 1 {
				res.Coeffs[coeff] = rlwe.Q - twoBits + 1
			} else {
				res.Coeffs[coeff] = twoBits
			}
			coeff++
		}
	}

	c.eval.NTT(res, res)
	return nil
}

// DecodePIRPayload rounds each decrypted coefficient and maps it back from
// the signed alphabet to two bits. A rounded value outside {0, 1, -1, -2}
// is an integrity anomaly and fails the retrieve with ErrPayloadDecode.
func (c *Client) DecodePIRPayload(dmsg []float64) (payload []byte, err error) {
	payload = make([]byte, rlwe.PIRPayloadSize)

	coeff := 0
	for byteIdx := 0; byteIdx < rlwe.PIRPayloadSize; byteIdx++ {
		var b byte
		for bitPair := 0; bitPair < 4; bitPair++ {
			var twoBits byte
			switch int(math.Round(dmsg[coeff])) {
			case 0:
				twoBits = 0
			case 1:
				twoBits = 1
			case -1:
				twoBits = 2
			case -2:
				twoBits = 3
			default:
				return nil, fmt.Errorf("%w: coefficient %d", ErrPayloadDecode, coeff)
			}
			b |= twoBits << (bitPair * 2)
			coeff++
		}
		payload[byteIdx] = b
	}
	return payload, nil
}
