package pest

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vikstrand/protoharbor/internal/transport"
)

// readMessage reads one full frame from r, verifies its checksum and parses
// its payload. The returned error is the exact text to report back to the
// peer in an Error message when parsing fails.
func readMessage(r io.Reader) (message, error) {
	header, err := transport.ReadExact(r, 5)
	if err != nil {
		return message{}, fmt.Errorf("couldn't read message header")
	}

	msgType := header[0]
	msgLen := binary.BigEndian.Uint32(header[1:5])
	if msgLen < 6 {
		return message{}, fmt.Errorf("invalid message length")
	}

	rest, err := transport.ReadExact(r, int(msgLen)-5)
	if err != nil {
		return message{}, fmt.Errorf("invalid message length")
	}

	full := append(append([]byte{}, header...), rest...)
	if transport.ChecksumByte(full[:len(full)-1]) != full[len(full)-1] {
		return message{}, fmt.Errorf("invalid checksum")
	}

	payload := rest[:len(rest)-1]
	return parsePayload(msgType, payload)
}

func parsePayload(msgType byte, data []byte) (message, error) {
	idx := 0
	var m message
	m.msgType = msgType

	var err error
	switch msgType {
	case msgHello:
		m.protocol, err = readString(data, &idx)
		if err == nil {
			m.version, err = readU32(data, &idx)
		}
	case msgError:
		m.errMsg, err = readString(data, &idx)
	case msgOK:
	case msgDialAuthority:
		m.site, err = readU32(data, &idx)
	case msgTargetPopulations:
		m.site, err = readU32(data, &idx)
		if err == nil {
			m.targets, err = readTargets(data, &idx)
		}
	case msgCreatePolicy:
		m.species, err = readString(data, &idx)
		if err == nil {
			m.action, err = readU8(data, &idx)
		}
	case msgDeletePolicy:
		m.policyID, err = readU32(data, &idx)
	case msgPolicyResult:
		m.policyID, err = readU32(data, &idx)
	case msgSiteVisit:
		m.site, err = readU32(data, &idx)
		if err == nil {
			m.observations, err = readObservations(data, &idx)
		}
	default:
		return message{}, fmt.Errorf("invalid message type")
	}
	if err != nil {
		return message{}, err
	}
	if idx != len(data) {
		return message{}, fmt.Errorf("found additional data")
	}
	return m, nil
}

func readU8(data []byte, idx *int) (byte, error) {
	if *idx+1 > len(data) {
		return 0, fmt.Errorf("not enough bytes to read u8")
	}
	v := data[*idx]
	*idx++
	return v, nil
}

func readU32(data []byte, idx *int) (uint32, error) {
	if *idx+4 > len(data) {
		return 0, fmt.Errorf("not enough bytes to read u32")
	}
	v := binary.BigEndian.Uint32(data[*idx : *idx+4])
	*idx += 4
	return v, nil
}

func readString(data []byte, idx *int) (string, error) {
	n, err := readU32(data, idx)
	if err != nil {
		return "", err
	}
	if *idx+int(n) > len(data) {
		return "", fmt.Errorf("not enough bytes to read string")
	}
	s := string(data[*idx : *idx+int(n)])
	*idx += int(n)
	return s, nil
}

func readTargets(data []byte, idx *int) ([]populationTarget, error) {
	n, err := readU32(data, idx)
	if err != nil {
		return nil, err
	}
	// cap the preallocation at what data could possibly hold (each target is
	// at least 12 bytes: an empty string length plus min/max), so a small
	// checksum-valid frame declaring a huge n can't force a giant allocation
	if n > uint32(len(data[*idx:])/12) {
		return nil, fmt.Errorf("target count too large for message")
	}
	targets := make([]populationTarget, 0, n)
	for i := uint32(0); i < n; i++ {
		species, err := readString(data, idx)
		if err != nil {
			return nil, err
		}
		min, err := readU32(data, idx)
		if err != nil {
			return nil, err
		}
		max, err := readU32(data, idx)
		if err != nil {
			return nil, err
		}
		targets = append(targets, populationTarget{species: species, min: min, max: max})
	}
	return targets, nil
}

func readObservations(data []byte, idx *int) ([]populationObs, error) {
	n, err := readU32(data, idx)
	if err != nil {
		return nil, err
	}
	// each observation is at least 8 bytes (empty species length + count);
	// reject an n that couldn't possibly fit in what's left of data before
	// preallocating against it
	if n > uint32(len(data[*idx:])/8) {
		return nil, fmt.Errorf("observation count too large for message")
	}
	seen := make(map[string]uint32, n)
	observations := make([]populationObs, 0, n)
	for i := uint32(0); i < n; i++ {
		species, err := readString(data, idx)
		if err != nil {
			return nil, err
		}
		count, err := readU32(data, idx)
		if err != nil {
			return nil, err
		}
		if prior, ok := seen[species]; ok && prior != count {
			return nil, fmt.Errorf("conflicting counts in population observation")
		}
		seen[species] = count
		observations = append(observations, populationObs{species: species, count: count})
	}
	return observations, nil
}
