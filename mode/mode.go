// Package mode implements B4AE's authentication-mode negotiation: each
// party advertises the schemes it supports, the responder picks one from
// the overlap, and the choice is bound into the transcript hash so an
// on-path attacker cannot strip options to force a weaker scheme.
package mode

import (
	"sort"

	"github.com/b4ae-project/b4ae/b4aeerr"
)

// AuthMode identifies an authentication scheme. ModeC is reserved: it is a
// valid wire value so a peer advertising it doesn't corrupt framing for
// others, but Select always rejects it.
type AuthMode uint8

const (
	ModeA AuthMode = iota + 1 // deniable, HMAC-over-mutual-X25519
	ModeB                     // non-repudiable, Dilithium mode5
	ModeC                     // reserved, always rejected
)

func (m AuthMode) String() string {
	switch m {
	case ModeA:
		return "A"
	case ModeB:
		return "B"
	case ModeC:
		return "C"
	default:
		return "unknown"
	}
}

// Valid reports whether m is one of the three defined wire values.
func (m AuthMode) Valid() bool {
	return m == ModeA || m == ModeB || m == ModeC
}

// Offer is the set of modes a party is willing to use, in the order it
// prefers them. The offering party's most-preferred supported mode wins
// ties when both sides list everything.
type Offer struct {
	Supported []AuthMode
}

// NewOffer builds an Offer from a preference-ordered list of modes,
// rejecting duplicates and invalid values so a malformed offer never even
// reaches negotiation.
func NewOffer(preferred ...AuthMode) (Offer, error) {
	seen := make(map[AuthMode]bool, len(preferred))
	for _, m := range preferred {
		if !m.Valid() {
			return Offer{}, b4aeerr.New(b4aeerr.KindInvalidInput, "mode.NewOffer", "unknown auth mode in offer")
		}
		if seen[m] {
			return Offer{}, b4aeerr.New(b4aeerr.KindInvalidInput, "mode.NewOffer", "duplicate mode in offer")
		}
		seen[m] = true
	}
	out := make([]AuthMode, len(preferred))
	copy(out, preferred)
	return Offer{Supported: out}, nil
}

// Selection is the responder's chosen mode, bound to both offers so the
// transcript can prove neither party's advertised set was tampered with.
type Selection struct {
	Chosen       AuthMode
	InitiatorSet []AuthMode
	ResponderSet []AuthMode
}

// Select picks the initiator's most-preferred mode that the responder also
// supports. ModeC is never selectable even if both sides list it.
func Select(initiator, responder Offer) (Selection, error) {
	responderHas := make(map[AuthMode]bool, len(responder.Supported))
	for _, m := range responder.Supported {
		responderHas[m] = true
	}
	for _, m := range initiator.Supported {
		if m == ModeC {
			continue
		}
		if responderHas[m] {
			return Selection{
				Chosen:       m,
				InitiatorSet: cloneModes(initiator.Supported),
				ResponderSet: cloneModes(responder.Supported),
			}, nil
		}
	}
	return Selection{}, b4aeerr.New(b4aeerr.KindModeNegotiationFailed, "mode.Select", "no mutually supported non-reserved mode")
}

// Canonical returns the offer's modes in a fixed, sorted byte order for
// transcript binding, independent of the preference order used during
// selection. Preference order matters for Select; only the canonical,
// sorted form is hashed, so two offers containing the same set always
// produce the same transcript contribution regardless of how each party
// wrote out its preference list.
func (o Offer) Canonical() []byte {
	sorted := cloneModes(o.Supported)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	out := make([]byte, len(sorted))
	for i, m := range sorted {
		out[i] = byte(m)
	}
	return out
}

func cloneModes(in []AuthMode) []AuthMode {
	out := make([]AuthMode, len(in))
	copy(out, in)
	return out
}
