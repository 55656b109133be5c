package rangeproof

import (
	"encoding/binary"

	"github.com/gtank/merlin"
	"github.com/gtank/ristretto255"
)

// TranscriptLabel binds every proof to this application.
const TranscriptLabel = "ShadowWire_Transaction"

type transcript struct {
	t *merlin.Transcript
}

func newTranscript(label string) *transcript {
	return &transcript{t: merlin.NewTranscript(label)}
}

func (t *transcript) rangeProofDomainSep(n, m uint64) {
	t.t.AppendMessage([]byte("dom-sep"), []byte("rangeproof v1"))
	t.appendU64("n", n)
	t.appendU64("m", m)
}

func (t *transcript) innerProductDomainSep(n uint64) {
	t.t.AppendMessage([]byte("dom-sep"), []byte("ipp v1"))
	t.appendU64("n", n)
}

func (t *transcript) appendU64(label string, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	t.t.AppendMessage([]byte(label), buf[:])
}

func (t *transcript) appendPoint(label string, p *ristretto255.Element) {
	t.t.AppendMessage([]byte(label), p.Encode(nil))
}

// validateAndAppendPoint refuses the identity, which a cheating prover
// could use to cancel terms.
func (t *transcript) validateAndAppendPoint(label string, p *ristretto255.Element) error {
	if p.Equal(ristretto255.NewElement()) == 1 {
		return errIdentityPoint
	}
	t.appendPoint(label, p)
	return nil
}

func (t *transcript) appendScalar(label string, s *ristretto255.Scalar) {
	t.t.AppendMessage([]byte(label), s.Encode(nil))
}

func (t *transcript) challengeScalar(label string) *ristretto255.Scalar {
	buf := t.t.ExtractBytes([]byte(label), 64)
	return ristretto255.NewScalar().FromUniformBytes(buf)
}
