package pest

import (
	"bytes"
	"testing"
)

func TestHelloMessageEncodeDecodeRoundTrip(t *testing.T) {
	encoded := helloMessage().encode()
	decoded, err := readMessage(bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded.msgType != msgHello || decoded.protocol != "pestcontrol" || decoded.version != 1 {
		t.Fatalf("got %+v", decoded)
	}
}

func TestDialAuthorityMessageRoundTrip(t *testing.T) {
	encoded := dialAuthorityMessage(12345).encode()
	decoded, err := readMessage(bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded.msgType != msgDialAuthority || decoded.site != 12345 {
		t.Fatalf("got %+v", decoded)
	}
}

func TestCreatePolicyMessageRoundTrip(t *testing.T) {
	encoded := createPolicyMessage("dog", policyCull).encode()
	decoded, err := readMessage(bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded.species != "dog" || decoded.action != policyCull {
		t.Fatalf("got %+v", decoded)
	}
}

func TestSiteVisitMessageRoundTrip(t *testing.T) {
	m := message{
		msgType: msgSiteVisit,
		site:    999,
		observations: []populationObs{
			{species: "rat", count: 4},
			{species: "dog", count: 1},
		},
	}
	decoded, err := readMessage(bytes.NewReader(m.encode()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded.site != 999 || len(decoded.observations) != 2 {
		t.Fatalf("got %+v", decoded)
	}
}

func TestReadMessageRejectsBadChecksum(t *testing.T) {
	encoded := helloMessage().encode()
	encoded[len(encoded)-1] ^= 0xff
	if _, err := readMessage(bytes.NewReader(encoded)); err == nil {
		t.Fatal("expected checksum error")
	}
}

func TestReadMessageRejectsTrailingData(t *testing.T) {
	// a DialAuthority payload is exactly 4 bytes (the site u32); append one
	// extra stray byte and rebuild the frame with a correct length and
	// checksum so only the trailing-data check can fail.
	var payload bytes.Buffer
	writeU32(&payload, 1)
	payload.WriteByte(0x00)

	var frame bytes.Buffer
	frame.WriteByte(msgDialAuthority)
	lenField := make([]byte, 4)
	totalLen := 1 + 4 + payload.Len() + 1
	lenField[0] = byte(totalLen >> 24)
	lenField[1] = byte(totalLen >> 16)
	lenField[2] = byte(totalLen >> 8)
	lenField[3] = byte(totalLen)
	frame.Write(lenField)
	frame.Write(payload.Bytes())

	checksum := byte(0)
	for _, b := range frame.Bytes() {
		checksum += b
	}
	frame.WriteByte(-checksum)

	if _, err := readMessage(bytes.NewReader(frame.Bytes())); err == nil {
		t.Fatal("expected trailing-data error")
	}
}

func TestErrorMessageFormatsText(t *testing.T) {
	m := errorMessage("bad %s", "thing")
	if m.errMsg != "bad thing" {
		t.Fatalf("got %q", m.errMsg)
	}
}
