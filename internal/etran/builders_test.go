package etran

import (
	"encoding/xml"
	"errors"
	"strings"
	"testing"
)

func TestBuildTrainIndex_SplitFormat(t *testing.T) {
	inner, err := buildTrainIndex("12345-678-90123", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(inner, "<SPP4700>") {
		t.Fatalf("unexpected body: %s", inner)
	}
	// middle 3-digit group must survive verbatim between the two code6 halves.
	want := "<SPP4700><TrainIndex>" + code6(12345) + "678" + code6(90123) + "</TrainIndex></SPP4700>"
	if inner != want {
		t.Fatalf("got %s, want %s", inner, want)
	}
}

func TestBuildTrainIndex_PlainFormat(t *testing.T) {
	inner, err := buildTrainIndex("123456789012345", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "<SPP4700><TrainIndex>123456789012345</TrainIndex></SPP4700>"
	if inner != want {
		t.Fatalf("expected the 15-digit form to pass through unmodified, got %s", inner)
	}
}

func TestBuildTrainIndex_Invalid(t *testing.T) {
	_, err := buildTrainIndex("not-a-train-index", false)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
}

func TestBuildWagonBatch_RejectsDuplicates(t *testing.T) {
	_, err := buildWagonBatch("12345678,12345678", false)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
}

func TestBuildWagonBatch_PreservesOrder(t *testing.T) {
	inner, err := buildWagonBatch("11111111,22222222", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Index(inner, "11111111") > strings.Index(inner, "22222222") {
		t.Fatalf("order not preserved: %s", inner)
	}
}

func TestBuildWagonBatch_InjectsGzipToggle(t *testing.T) {
	inner, err := buildWagonBatch("11111111", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(inner, "<UseGZIPBinary>1</UseGZIPBinary>") {
		t.Fatalf("expected gzip toggle, got %s", inner)
	}
}

func TestBuildReferenceLookup_UnknownKeyRejected(t *testing.T) {
	_, err := buildReferenceLookup("region=RU;bogus=1", false)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
}

func TestBuildReferenceLookup_InjectsGzipToggle(t *testing.T) {
	inner, err := buildReferenceLookup("region=RU", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(inner, "<UseGZIPBinary>1</UseGZIPBinary>") {
		t.Fatalf("expected gzip toggle, got %s", inner)
	}
}

func TestBuild_UnknownTypeID(t *testing.T) {
	_, err := Build(101, "anything", "user", "pass", false)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected type_id 101 to be unregistered, got %v", err)
	}
}

func TestBuild_WrapsEnvelope(t *testing.T) {
	body, err := Build(3, "12345", "user", "pass", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(body, "<Login>user</Login>") || !strings.Contains(body, "<Password>pass</Password>") {
		t.Fatalf("envelope missing credentials: %s", body)
	}
}

func TestXMLEscape_RoundTripsThroughUnescape(t *testing.T) {
	in := `<tag attr="v">&'text'&</tag>`
	escaped := XMLEscape(in)
	if strings.ContainsAny(escaped, "<>") {
		t.Fatalf("escaped text still contains markup characters: %s", escaped)
	}
	var out struct {
		Text string `xml:",chardata"`
	}
	if err := xml.Unmarshal([]byte("<t>"+escaped+"</t>"), &out); err != nil {
		t.Fatalf("unescape: %v", err)
	}
	if out.Text != in {
		t.Fatalf("round trip: got %q, want %q", out.Text, in)
	}
}
