// envelope_test.go covers the shared inbound frame decoding.
package wsstream

import "testing"

func TestParseEnvelopeSuccess(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"type":"success","payload":{"items":["a"]}}`))
	if err != nil {
		t.Fatalf("ParseEnvelope returned error: %v", err)
	}
	if env.Type != EnvelopeSuccess {
		t.Fatalf("unexpected type %q", env.Type)
	}
	if env.IsError() {
		t.Fatalf("success envelope reported as error")
	}
	if len(env.Payload) == 0 {
		t.Fatalf("payload lost during decode")
	}
}

func TestParseEnvelopeError(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"type":"error","message":"pod not found"}`))
	if err != nil {
		t.Fatalf("ParseEnvelope returned error: %v", err)
	}
	if !env.IsError() {
		t.Fatalf("error envelope not recognized")
	}
	if env.Message != "pod not found" {
		t.Fatalf("unexpected message %q", env.Message)
	}
}

func TestParseEnvelopeEmptyFrameIsKeepalive(t *testing.T) {
	env, err := ParseEnvelope(nil)
	if err != nil {
		t.Fatalf("empty frame should decode cleanly, got %v", err)
	}
	if env.Type != "" || env.IsError() {
		t.Fatalf("empty frame should decode to a zero envelope, got %+v", env)
	}
}

func TestParseEnvelopeMalformed(t *testing.T) {
	if _, err := ParseEnvelope([]byte("not json")); err == nil {
		t.Fatalf("expected decode error for malformed frame")
	}
}
