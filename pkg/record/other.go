package record

import (
	"fmt"
	"sort"
	"strings"
)

// Recognized keys of Other. Rules declare which of these they read.
const (
	KeyProtocol       = "protocol"
	KeyTLSVersion     = "tls_version"
	KeyTLSProtocol    = "tls_protocol"
	KeyTLSCipher      = "tls_cipher"
	KeyTLSEnabled     = "tls_enabled"
	KeyCertificate    = "certificate" // nested: subject, expired, self_signed, san
	KeyCertSAN        = "cert_san"
	KeyCertSelfSigned = "cert_self_signed"
	KeySMBDialect     = "smb_dialect"
	KeyMalwareName    = "malware_name"
	KeyMalware        = "malware"
	KeyErrorMessage   = "error_message"
	KeyASNName        = "asn_name"
	KeyLabels         = "labels"
)

// Other holds protocol, TLS, malware and certificate hints that vary per scan
// source. Values come from decoded JSON, so accessors coerce loosely.
type Other map[string]any

// Certificate is the typed view of the "certificate" entry.
type Certificate struct {
	Subject    string
	Expired    bool
	SelfSigned bool
	SAN        []string
}

// String returns the value for key as a string. Numbers are formatted, maps
// and slices are not scalar and yield "".
func (o Other) String(key string) string {
	v, ok := o[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case bool, int, int64, float64, float32:
		return scalarString(t)
	}
	return ""
}

// Bool returns the value for key as a bool. Only a real true or the string
// "true" count.
func (o Other) Bool(key string) bool {
	switch t := o[key].(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(t, "true")
	}
	return false
}

// Strings returns a string list for key.
func (o Other) Strings(key string) []string {
	return toStrings(o[key])
}

// Certificate decodes the nested certificate map, if present.
func (o Other) Certificate() (Certificate, bool) {
	m, ok := o[KeyCertificate].(map[string]any)
	if !ok || len(m) == 0 {
		return Certificate{}, false
	}
	sub := Other(m)
	c := Certificate{
		Subject:    sub.String("subject"),
		Expired:    sub.Bool("expired"),
		SelfSigned: sub.Bool("self_signed"),
		SAN:        sub.Strings("san"),
	}
	if c.Subject == "" {
		c.Subject = sub.String("cn")
	}
	return c, true
}

// Scalars returns "key:value" pairs for string and number entries in
// sorted key order.
func (o Other) Scalars() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		switch v := o[k].(type) {
		case string, int, int64, float64, float32:
			out = append(out, k+":"+scalarString(v))
		}
	}
	return out
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	case float32:
		return scalarString(float64(t))
	default:
		return fmt.Sprint(t)
	}
}

func toStrings(v any) []string {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, x := range t {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	}
	return nil
}
