package etran

import "fmt"

const envelopeTemplate = `<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns:sys="SysEtranInt">
<soapenv:Body>
	<sys:GetBlock>
		<Login>%s</Login>
		<Password>%s</Password>
		<Text>%s</Text>
	</sys:GetBlock>
</soapenv:Body>
</soapenv:Envelope>
`

// XMLEscape escapes the characters XML treats as markup so a string can be
// safely embedded as character data inside <Text>.
func XMLEscape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			out = append(out, "&lt;"...)
		case '>':
			out = append(out, "&gt;"...)
		case '"':
			out = append(out, "&quot;"...)
		case '\'':
			out = append(out, "&apos;"...)
		case '&':
			out = append(out, "&amp;"...)
		default:
			out = append(out, s[i])
		}
	}
	return string(out)
}

// buildEnvelope wraps an already-built, unescaped inner request body in the
// login/password SOAP envelope the upstream gateway expects. The inner body
// is escaped here, once, immediately before insertion.
func buildEnvelope(login, password, innerBody string) string {
	return fmt.Sprintf(envelopeTemplate, XMLEscape(login), XMLEscape(password), XMLEscape(innerBody))
}
