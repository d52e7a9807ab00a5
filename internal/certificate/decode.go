package certificate

import (
	"bytes"
	encasn1 "encoding/asn1"
	"encoding/base64"
	"errors"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
	"golang.org/x/text/encoding/charmap"
)

// Sentinel errors for container decoding. All are reported to callers as
// fault.CertificateFormat.
var (
	ErrCorruptedUpload       = errors.New("certificate container appears corrupted in transfer (found UTF-8 replacement characters); re-upload the file in binary mode")
	ErrUnrecognizedContainer = errors.New("data is not a PKCS#12 container in any supported encoding")
	ErrEmptyContainer        = errors.New("certificate container is empty")
)

// corruptionMarker is the UTF-8 encoding of U+FFFD. A text layer that fails
// to decode a byte replaces it with this sequence.
var corruptionMarker = []byte{0xEF, 0xBF, 0xBD}

// corruptionScanLen bounds the corruption scan to the container header, which
// is structural DER and never legitimately contains the marker.
const corruptionScanLen = 32

const pkcs12Version = 3

// Strategy turns possibly mangled input into candidate container bytes.
// It reports false when it does not apply to the input.
type Strategy struct {
	Name   string
	Decode func(raw []byte) ([]byte, bool)
}

// Strategies is the ordered decode chain. The first strategy whose output
// passes the structural probe wins.
var Strategies = []Strategy{
	{Name: "raw", Decode: decodeRaw},
	{Name: "latin1", Decode: decodeCharmap(charmap.ISO8859_1)},
	{Name: "windows1252", Decode: decodeCharmap(charmap.Windows1252)},
	{Name: "trim", Decode: decodeTrim},
	{Name: "crlf", Decode: decodeCRLF},
	{Name: "base64", Decode: decodeBase64},
}

// Decoded is a structurally valid container and the strategy that produced it.
type Decoded struct {
	Data     []byte
	Strategy string
}

// DecodeContainer runs the decode chain over raw and returns the first
// structurally valid PKCS#12 container. Input carrying the UTF-8 replacement
// marker in its header fails fast with ErrCorruptedUpload.
func DecodeContainer(raw []byte) (Decoded, error) {
	if len(raw) == 0 {
		return Decoded{}, ErrEmptyContainer
	}

	if HasCorruptionMarker(raw) {
		return Decoded{}, ErrCorruptedUpload
	}

	tried := make([][]byte, 0, len(Strategies))

	for _, s := range Strategies {
		out, ok := s.Decode(raw)
		if !ok || len(out) == 0 || seen(tried, out) {
			continue
		}

		tried = append(tried, out)

		if LooksLikePKCS12(out) {
			return Decoded{Data: out, Strategy: s.Name}, nil
		}
	}

	return Decoded{}, ErrUnrecognizedContainer
}

// HasCorruptionMarker reports whether the first bytes of data contain EF BF BD.
func HasCorruptionMarker(data []byte) bool {
	head := data
	if len(head) > corruptionScanLen {
		head = head[:corruptionScanLen]
	}

	return bytes.Contains(head, corruptionMarker)
}

func seen(tried [][]byte, out []byte) bool {
	for _, t := range tried {
		if bytes.Equal(t, out) {
			return true
		}
	}

	return false
}

// LooksLikePKCS12 probes the PFX outer structure: a single DER SEQUENCE
// holding INTEGER version 3, a ContentInfo SEQUENCE that starts with an
// OID, and an optional MacData SEQUENCE, with nothing trailing.
func LooksLikePKCS12(data []byte) bool {
	input := cryptobyte.String(data)

	var pfx cryptobyte.String
	if !input.ReadASN1(&pfx, asn1.SEQUENCE) || !input.Empty() {
		return false
	}

	var version int
	if !pfx.ReadASN1Integer(&version) || version != pkcs12Version {
		return false
	}

	var authSafe cryptobyte.String
	if !pfx.ReadASN1(&authSafe, asn1.SEQUENCE) {
		return false
	}

	var contentType encasn1.ObjectIdentifier
	if !authSafe.ReadASN1ObjectIdentifier(&contentType) {
		return false
	}

	if pfx.Empty() {
		return true
	}

	var macData cryptobyte.String

	return pfx.ReadASN1(&macData, asn1.SEQUENCE) && pfx.Empty()
}

func decodeRaw(raw []byte) ([]byte, bool) {
	return raw, true
}

// decodeCharmap reverses binary data that was read as a single-byte charset
// and re-encoded as UTF-8: every rune maps back to its original byte.
func decodeCharmap(cm *charmap.Charmap) func([]byte) ([]byte, bool) {
	return func(raw []byte) ([]byte, bool) {
		out, err := cm.NewEncoder().Bytes(raw)
		if err != nil {
			return nil, false
		}

		return out, true
	}
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeTrim drops a leading BOM and any whitespace a text editor appended
// after the outer DER element.
func decodeTrim(raw []byte) ([]byte, bool) {
	return trimToElement(bytes.TrimPrefix(raw, utf8BOM)), true
}

// decodeCRLF undoes text-mode newline translation byte by byte: every CRLF
// pair written in place of LF collapses back to LF.
func decodeCRLF(raw []byte) ([]byte, bool) {
	in := bytes.TrimPrefix(raw, utf8BOM)
	if !bytes.Contains(in, []byte("\r\n")) {
		return nil, false
	}

	out := make([]byte, 0, len(in))
	for i := 0; i < len(in); i++ {
		if in[i] == '\r' && i+1 < len(in) && in[i+1] == '\n' {
			continue
		}

		out = append(out, in[i])
	}

	return trimToElement(out), true
}

// trimToElement cuts data to its leading DER SEQUENCE when only whitespace
// follows it.
func trimToElement(data []byte) []byte {
	rest := cryptobyte.String(data)

	var elem cryptobyte.String
	if rest.ReadASN1Element(&elem, asn1.SEQUENCE) && isASCIISpace(rest) {
		return []byte(elem)
	}

	return data
}

var base64Encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

// decodeBase64 treats raw as base64 text, optionally PEM-armored, and
// decodes it after dropping armor lines and whitespace.
func decodeBase64(raw []byte) ([]byte, bool) {
	var body []byte

	for line := range bytes.Lines(raw) {
		trimmed := bytes.TrimSpace(line)
		if bytes.HasPrefix(trimmed, []byte("-----")) {
			continue
		}

		for _, c := range trimmed {
			if !isSpace(c) {
				body = append(body, c)
			}
		}
	}

	if len(body) == 0 {
		return nil, false
	}

	for _, enc := range base64Encodings {
		out := make([]byte, enc.DecodedLen(len(body)))

		n, err := enc.Decode(out, body)
		if err == nil && n > 0 {
			return out[:n], true
		}
	}

	return nil, false
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func isASCIISpace(b []byte) bool {
	for _, c := range b {
		if !isSpace(c) {
			return false
		}
	}

	return true
}
