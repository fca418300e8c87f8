package etran

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// Decode unwraps the nested SOAP/XML envelope the upstream gateway returns
// and classifies it. It is a pure function: no I/O, no access to shared
// pipeline state. The returned text is either the success payload (a
// "<root>...</root>" fragment for GetInformReply/GetInformNSIReply, the
// inner XML verbatim for any other root tag) or a human-readable error
// description.
func Decode(raw []byte) (isError bool, text string) {
	if len(raw) == 0 {
		return true, "empty response"
	}

	outer, err := decodeOuterEnvelope(raw)
	if err != nil {
		return true, fmt.Sprintf("decode outer envelope: %v", err)
	}

	inner := outer.Body.GetBlockResponse.Text
	if strings.TrimSpace(inner) == "" {
		return true, "empty response"
	}

	root, err := decodeForcingUTF8(inner)
	if err != nil {
		return true, fmt.Sprintf("decode inner envelope: %v", err)
	}

	switch root.XMLName.Local {
	case "error":
		return true, fmt.Sprintf("%s %s", root.ErrorStatusCode, root.ErrorMessage)
	case "GetInformReply", "GetInformNSIReply":
		return decodeInformReply(root)
	default:
		return false, string(root.rawContent)
	}
}

// innerElement is a loosely-typed decode target for the inner envelope's
// root element: it captures attributes common to the error branch and the
// raw serialized form so the default branch can re-emit it verbatim.
type innerElement struct {
	XMLName         xml.Name
	ErrorStatusCode string `xml:"errorStatusCode,attr"`
	ErrorMessage    string `xml:"errorMessage,attr"`
	ASOUPReply      string `xml:"ASOUPReply"`
	ASOUP64Reply    string `xml:"ASOUP64Reply"`
	rawContent      []byte
}

func decodeOuterEnvelope(raw []byte) (outerEnvelope, error) {
	var env outerEnvelope
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.CharsetReader = charsetReader
	if err := dec.Decode(&env); err != nil {
		return outerEnvelope{}, err
	}
	return env, nil
}

type outerEnvelope struct {
	XMLName xml.Name
	Body    struct {
		XMLName          xml.Name
		GetBlockResponse struct {
			Text string `xml:"Text"`
		} `xml:"GetBlockResponse"`
	} `xml:"Body"`
}

// decodeForcingUTF8 re-parses the inner XML string ignoring whatever
// encoding it declares (the original source falsely labels it), treating
// its bytes as already-decoded UTF-8.
func decodeForcingUTF8(s string) (innerElement, error) {
	raw := []byte(s)
	var el innerElement
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
	if err := dec.Decode(&el); err != nil {
		return innerElement{}, err
	}
	el.rawContent = bytes.TrimSpace(raw)
	return el, nil
}

// charsetReader honors the outer envelope's declared encoding, which may be
// UTF-8 or a Cyrillic legacy code page.
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "", "utf-8", "utf8":
		return input, nil
	case "windows-1251", "cp1251":
		return charmap.Windows1251.NewDecoder().Reader(input), nil
	default:
		return nil, fmt.Errorf("unsupported outer encoding %q", charset)
	}
}

// decodeInformReply implements the GetInformReply/GetInformNSIReply branch:
// it locates the nested second envelope (plain or gzip+base64), decodes it,
// and navigates down to the return element.
func decodeInformReply(root innerElement) (bool, string) {
	var payload []byte
	switch {
	case strings.TrimSpace(root.ASOUPReply) != "":
		payload = []byte(root.ASOUPReply)
	case strings.TrimSpace(root.ASOUP64Reply) != "":
		decoded, err := decodeGzipBase64(root.ASOUP64Reply)
		if err != nil {
			return true, fmt.Sprintf("decode ASOUP64Reply: %v", err)
		}
		payload = decoded
	default:
		return true, "empty response"
	}

	var env secondEnvelope
	dec := xml.NewDecoder(bytes.NewReader(payload))
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
	if err := dec.Decode(&env); err != nil {
		return true, fmt.Sprintf("decode second envelope: %v", err)
	}

	ret := env.Body.Operation.Return
	if ret.ReturnCode != "0" {
		return true, ret.ErrorMessage
	}

	if len(ret.Children) == 0 {
		return true, "empty response"
	}
	first := ret.Children[0]
	body := "<root>" + string(first.Inner) + "</root>"
	return false, stripRootOpenTag(body)
}

// secondEnvelope models Envelope/Body/*/return: Body's single child can be
// any tag name (it names the operation), so it is captured generically;
// "return" inside it is matched by name since its position is fixed.
type secondEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Operation operationWrapper `xml:",any"`
	} `xml:"Body"`
}

type operationWrapper struct {
	Return returnElement `xml:"return"`
}

type returnElement struct {
	ReturnCode   string       `xml:"returnCode"`
	ErrorMessage string       `xml:"errorMessage"`
	Children     []rawElement `xml:",any"`
}

type rawElement struct {
	XMLName xml.Name
	Inner   []byte `xml:",innerxml"`
}

var rootOpenTag = regexp.MustCompile(`(?s)^<root.*?>`)

// stripRootOpenTag strips any namespace/attribute cruft off an already
// root-tagged opening tag, leaving a bare <root>. Renaming happens at
// construction time above, so this is a defensive no-op in the common case.
func stripRootOpenTag(s string) string {
	return rootOpenTag.ReplaceAllString(s, "<root>")
}

func decodeGzipBase64(s string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, err
	}
	gz, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	return io.ReadAll(gz)
}
