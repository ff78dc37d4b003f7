// Package pest implements the site-visiting pest-control protocol: a
// checksummed binary frame format carrying Hello/SiteVisit traffic from
// field clients, reconciled against per-site population targets fetched
// (and cached) from an authority server, which in turn receives
// CreatePolicy/DeletePolicy commands to keep species counts within range.
package pest

import (
	"bytes"
	"fmt"

	"github.com/vikstrand/protoharbor/internal/transport"
)

const (
	msgHello             byte = 0x50
	msgError             byte = 0x51
	msgOK                byte = 0x52
	msgDialAuthority     byte = 0x53
	msgTargetPopulations byte = 0x54
	msgCreatePolicy      byte = 0x55
	msgDeletePolicy      byte = 0x56
	msgPolicyResult      byte = 0x57
	msgSiteVisit         byte = 0x58
)

const (
	policyConserve byte = 0xa0
	policyCull     byte = 0x90
)

type populationTarget struct {
	species  string
	min, max uint32
}

type populationObs struct {
	species string
	count   uint32
}

// message is the decoded form of any one of the nine frame types. Only the
// fields relevant to msgType are populated.
type message struct {
	msgType      byte
	protocol     string
	version      uint32
	errMsg       string
	site         uint32
	targets      []populationTarget
	species      string
	action       byte
	policyID     uint32
	observations []populationObs
}

func helloMessage() message {
	return message{msgType: msgHello, protocol: "pestcontrol", version: 1}
}

func errorMessage(format string, args ...any) message {
	return message{msgType: msgError, errMsg: fmt.Sprintf(format, args...)}
}

func dialAuthorityMessage(site uint32) message {
	return message{msgType: msgDialAuthority, site: site}
}

func createPolicyMessage(species string, action byte) message {
	return message{msgType: msgCreatePolicy, species: species, action: action}
}

func deletePolicyMessage(policyID uint32) message {
	return message{msgType: msgDeletePolicy, policyID: policyID}
}

// encode serializes m into a full wire frame: type, length, payload and a
// trailing checksum byte that brings the whole frame's byte sum to zero.
func (m message) encode() []byte {
	var payload bytes.Buffer
	switch m.msgType {
	case msgHello:
		writeString(&payload, m.protocol)
		writeU32(&payload, m.version)
	case msgError:
		writeString(&payload, m.errMsg)
	case msgOK:
	case msgDialAuthority:
		writeU32(&payload, m.site)
	case msgTargetPopulations:
		writeU32(&payload, m.site)
		writeTargets(&payload, m.targets)
	case msgCreatePolicy:
		writeString(&payload, m.species)
		payload.WriteByte(m.action)
	case msgDeletePolicy:
		writeU32(&payload, m.policyID)
	case msgPolicyResult:
		writeU32(&payload, m.policyID)
	case msgSiteVisit:
		writeU32(&payload, m.site)
		writeObservations(&payload, m.observations)
	}

	var frame bytes.Buffer
	transport.BuildLengthPrefixedFrame(&frame, m.msgType, payload.Bytes())
	checksum := transport.ChecksumByte(frame.Bytes())
	frame.WriteByte(checksum)
	return frame.Bytes()
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
	buf.Write(b[:])
}

func writeString(buf *bytes.Buffer, s string) {
	writeU32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func writeTargets(buf *bytes.Buffer, targets []populationTarget) {
	writeU32(buf, uint32(len(targets)))
	for _, t := range targets {
		writeString(buf, t.species)
		writeU32(buf, t.min)
		writeU32(buf, t.max)
	}
}

func writeObservations(buf *bytes.Buffer, obs []populationObs) {
	writeU32(buf, uint32(len(obs)))
	for _, o := range obs {
		writeString(buf, o.species)
		writeU32(buf, o.count)
	}
}
