// Package evdapi implements the binary wire codec of the protocol. All
// multi-byte integers are little-endian and packed without padding;
// polynomials travel as raw coefficient arrays of 8 bytes each. Malformed
// or short bodies surface as errors that the transport treats as protocol
// errors and answers by closing the session.
package evdapi

import (
	"fmt"
	"io"

	"github.com/snuhcs-course/swpp-2025-project-team-07/ring"
	"github.com/snuhcs-course/swpp-2025-project-team-07/rlwe"
	"github.com/snuhcs-course/swpp-2025-project-team-07/utils/buffer"
)

// Setup status codes.
const (
	SetupStatusExists   uint8 = 0
	SetupStatusNew      uint8 = 1
	SetupStatusMismatch uint8 = 2
)

// WritePoly writes the raw coefficients of p.
func WritePoly(w io.Writer, p *ring.Poly) error {
	return buffer.WriteUint64Slice(w, p.Coeffs)
}

// ReadPolyInto fills the coefficients of p from r. The NTT tag is set by
// the caller, as the wire carries no metadata.
func ReadPolyInto(r io.Reader, p *ring.Poly) error {
	return buffer.ReadUint64Slice(r, p.Coeffs)
}

// WriteCiphertext writes the A and B components of a rank-1 ciphertext.
func WriteCiphertext(w io.Writer, ct *rlwe.Ciphertext) (err error) {
	if err = WritePoly(w, ct.A()); err != nil {
		return
	}
	return WritePoly(w, ct.B())
}

// ReadCiphertextInto fills a rank-1 ciphertext from r and tags it with the
// given NTT domain.
func ReadCiphertextInto(r io.Reader, ct *rlwe.Ciphertext, isNTT bool) (err error) {
	if err = ReadPolyInto(r, ct.A()); err != nil {
		return
	}
	if err = ReadPolyInto(r, ct.B()); err != nil {
		return
	}
	ct.SetIsNTT(isNTT)
	return
}

// WriteMLWECiphertext writes the stack A components followed by the body.
func WriteMLWECiphertext(w io.Writer, ct *rlwe.MLWECiphertext) (err error) {
	for _, a := range ct.A {
		if err = WritePoly(w, a); err != nil {
			return
		}
	}
	return WritePoly(w, ct.B)
}

// ReadMLWECiphertextInto fills an MLWE ciphertext from r, in the
// coefficient domain.
func ReadMLWECiphertextInto(r io.Reader, ct *rlwe.MLWECiphertext) (err error) {
	for _, a := range ct.A {
		if err = ReadPolyInto(r, a); err != nil {
			return
		}
		a.IsNTT = false
	}
	if err = ReadPolyInto(r, ct.B); err != nil {
		return
	}
	ct.B.IsNTT = false
	return
}

// WriteSwitchingKey writes the four key polynomials in wire order.
func WriteSwitchingKey(w io.Writer, swk *rlwe.SwitchingKey) (err error) {
	for _, p := range []*ring.Poly{swk.AQ, swk.AP, swk.BQ, swk.BP} {
		if err = WritePoly(w, p); err != nil {
			return
		}
	}
	return
}

// ReadSwitchingKeyInto fills a switching key from r. Key material is always
// in the NTT domain.
func ReadSwitchingKeyInto(r io.Reader, swk *rlwe.SwitchingKey) (err error) {
	for _, p := range []*ring.Poly{swk.AQ, swk.AP, swk.BQ, swk.BP} {
		if err = ReadPolyInto(r, p); err != nil {
			return
		}
		p.IsNTT = true
	}
	return
}

// WriteMLWESwitchingKey writes the stack slices of the four parts,
// interleaved per slice index.
func WriteMLWESwitchingKey(w io.Writer, swk *rlwe.MLWESwitchingKey) (err error) {
	for k := 0; k < swk.Stack(); k++ {
		for _, p := range []*ring.Poly{swk.AQ[k], swk.AP[k], swk.BQ[k], swk.BP[k]} {
			if err = WritePoly(w, p); err != nil {
				return
			}
		}
	}
	return
}

// ReadMLWESwitchingKeyInto fills an MLWE switching key from r, in the NTT
// domain.
func ReadMLWESwitchingKeyInto(r io.Reader, swk *rlwe.MLWESwitchingKey) (err error) {
	for k := 0; k < swk.Stack(); k++ {
		for _, p := range []*ring.Poly{swk.AQ[k], swk.AP[k], swk.BQ[k], swk.BP[k]} {
			if err = ReadPolyInto(r, p); err != nil {
				return
			}
			p.IsNTT = true
		}
	}
	return
}

// KeyBundle groups the evaluation keys uploaded once per collection.
type KeyBundle struct {
	RelinKey             *rlwe.SwitchingKey
	AutedModPackKeys     *rlwe.AutedModPackKeys
	AutedModPackMLWEKeys *rlwe.AutedModPackMLWEKeys
	PIRInvAutKeys        *rlwe.InvAutKeys
}

// NewKeyBundle allocates a zero KeyBundle for the given rank.
func NewKeyBundle(rank int) *KeyBundle {
	return &KeyBundle{
		RelinKey:             rlwe.NewSwitchingKey(),
		AutedModPackKeys:     rlwe.NewAutedModPackKeys(rank),
		AutedModPackMLWEKeys: rlwe.NewAutedModPackMLWEKeys(rank),
		PIRInvAutKeys:        rlwe.NewInvAutKeys(rlwe.PIRRank),
	}
}

// WriteKeyBundle writes the key blob in wire order: relinearization key,
// auted mod-pack keys, MLWE-shaped mod-pack keys, PIR inverse-automorphism
// keys.
func WriteKeyBundle(w io.Writer, keys *KeyBundle) (err error) {
	if err = WriteSwitchingKey(w, keys.RelinKey); err != nil {
		return
	}
	for _, row := range keys.AutedModPackKeys.Keys {
		for _, swk := range row {
			if err = WriteSwitchingKey(w, swk); err != nil {
				return
			}
		}
	}
	for _, row := range keys.AutedModPackMLWEKeys.Keys {
		for _, swk := range row {
			if err = WriteMLWESwitchingKey(w, swk); err != nil {
				return
			}
		}
	}
	for _, swk := range keys.PIRInvAutKeys.Keys {
		if err = WriteSwitchingKey(w, swk); err != nil {
			return
		}
	}
	return
}

// ReadKeyBundleInto fills a key bundle from r.
func ReadKeyBundleInto(r io.Reader, keys *KeyBundle) (err error) {
	if err = ReadSwitchingKeyInto(r, keys.RelinKey); err != nil {
		return
	}
	for _, row := range keys.AutedModPackKeys.Keys {
		for _, swk := range row {
			if err = ReadSwitchingKeyInto(r, swk); err != nil {
				return
			}
		}
	}
	for _, row := range keys.AutedModPackMLWEKeys.Keys {
		for _, swk := range row {
			if err = ReadMLWESwitchingKeyInto(r, swk); err != nil {
				return
			}
		}
	}
	for _, swk := range keys.PIRInvAutKeys.Keys {
		if err = ReadSwitchingKeyInto(r, swk); err != nil {
			return
		}
	}
	return
}

// SetupRequest is the body of the two-phase setup handshake. Phase 1
// carries HasKeys=false; phase 2 repeats the prefix with HasKeys=true
// followed by the key blob.
type SetupRequest struct {
	CollectionHash uint64
	Dimension      uint64
	Metric         uint8
	HasKeys        bool
	Keys           *KeyBundle
}

// WriteSetupRequest writes a setup request body.
func WriteSetupRequest(w io.Writer, req *SetupRequest) (err error) {
	if err = buffer.WriteUint64(w, req.CollectionHash); err != nil {
		return
	}
	if err = buffer.WriteUint64(w, req.Dimension); err != nil {
		return
	}
	if err = buffer.WriteUint8(w, req.Metric); err != nil {
		return
	}
	hasKeys := uint8(0)
	if req.HasKeys {
		hasKeys = 1
	}
	if err = buffer.WriteUint8(w, hasKeys); err != nil {
		return
	}
	if req.HasKeys {
		return WriteKeyBundle(w, req.Keys)
	}
	return
}

// ReadSetupRequestPrefix reads the fixed prefix of a setup request. When
// the prefix announces keys, the caller derives the rank from the
// dimension and reads the blob with ReadKeyBundleInto.
func ReadSetupRequestPrefix(r io.Reader) (req *SetupRequest, err error) {
	req = new(SetupRequest)
	if req.CollectionHash, err = buffer.ReadUint64(r); err != nil {
		return nil, fmt.Errorf("setup request: %w", err)
	}
	if req.Dimension, err = buffer.ReadUint64(r); err != nil {
		return nil, fmt.Errorf("setup request: %w", err)
	}
	if req.Metric, err = buffer.ReadUint8(r); err != nil {
		return nil, fmt.Errorf("setup request: %w", err)
	}
	var hasKeys uint8
	if hasKeys, err = buffer.ReadUint8(r); err != nil {
		return nil, fmt.Errorf("setup request: %w", err)
	}
	req.HasKeys = hasKeys == 1
	return req, nil
}

// SetupResponse is the fixed-size response of both setup phases.
type SetupResponse struct {
	Status    uint8
	Dimension uint64
	Metric    uint8
	DBSize    uint64
}

// WriteSetupResponse writes a setup response.
func WriteSetupResponse(w io.Writer, resp *SetupResponse) (err error) {
	if err = buffer.WriteUint8(w, resp.Status); err != nil {
		return
	}
	if err = buffer.WriteUint64(w, resp.Dimension); err != nil {
		return
	}
	if err = buffer.WriteUint8(w, resp.Metric); err != nil {
		return
	}
	return buffer.WriteUint64(w, resp.DBSize)
}

// ReadSetupResponse reads a setup response.
func ReadSetupResponse(r io.Reader) (resp *SetupResponse, err error) {
	resp = new(SetupResponse)
	if resp.Status, err = buffer.ReadUint8(r); err != nil {
		return nil, fmt.Errorf("setup response: %w", err)
	}
	if resp.Dimension, err = buffer.ReadUint64(r); err != nil {
		return nil, fmt.Errorf("setup response: %w", err)
	}
	if resp.Metric, err = buffer.ReadUint8(r); err != nil {
		return nil, fmt.Errorf("setup response: %w", err)
	}
	if resp.DBSize, err = buffer.ReadUint64(r); err != nil {
		return nil, fmt.Errorf("setup response: %w", err)
	}
	return resp, nil
}
