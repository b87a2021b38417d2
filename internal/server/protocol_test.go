package server

import (
	"bytes"
	"strings"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("<request><action>LOGIN</action></request>")
	if err := WriteFrame(&buf, payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadFrame(&buf, 1024)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch: %q", got)
	}
}

func TestReadFrameRejectsOversize(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, make([]byte, 100)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadFrame(&buf, 50); err == nil {
		t.Fatal("oversized frame should be rejected")
	}
}

func TestReadFrameRejectsEmpty(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0, 0, 0, 0})
	if _, err := ReadFrame(buf, 1024); err == nil {
		t.Fatal("empty frame should be rejected")
	}
}

func TestRequestEnvelopeRoundTrip(t *testing.T) {
	req := NewRequest("LOGIN", "username", "alice", "password", "s3cret <&>")
	payload, err := EncodeRequest(req)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeRequest(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Action != "LOGIN" || decoded.Get("username") != "alice" {
		t.Fatalf("decoded request: %+v", decoded)
	}
	// XML escaping must survive the trip.
	if decoded.Get("password") != "s3cret <&>" {
		t.Fatalf("password mangled: %q", decoded.Get("password"))
	}
}

func TestDecodeRequestRejectsGarbage(t *testing.T) {
	if _, err := DecodeRequest([]byte("not xml at all")); err == nil {
		t.Fatal("garbage should fail to decode")
	}
	if _, err := DecodeRequest([]byte("<request></request>")); err == nil {
		t.Fatal("missing action should fail")
	}
}

func TestRequestParamParsing(t *testing.T) {
	req := NewRequest("X",
		"id", "42",
		"price", "4.5",
		"flag", "true",
		"blob", "aGVsbG8=", // "hello"
		"bad", "notanumber",
	)

	if v, err := req.Int64("id"); err != nil || v != 42 {
		t.Fatalf("Int64 = %d, %v", v, err)
	}
	if v, err := req.Float("price"); err != nil || v != 4.5 {
		t.Fatalf("Float = %v, %v", v, err)
	}
	if v, err := req.Bool("flag"); err != nil || !v {
		t.Fatalf("Bool = %v, %v", v, err)
	}
	if v, err := req.Bool("absent"); err != nil || v {
		t.Fatalf("absent Bool = %v, %v", v, err)
	}
	if v, err := req.Bytes("blob"); err != nil || string(v) != "hello" {
		t.Fatalf("Bytes = %q, %v", v, err)
	}
	if _, err := req.Int64("bad"); err == nil {
		t.Fatal("bad number should fail")
	}
	if _, err := req.Int64("absent"); err == nil {
		t.Fatal("absent id should fail")
	}
}

func TestResponseEnvelope(t *testing.T) {
	dto := toUserDTO(testUser())
	payload, err := EncodeResponse(successResponse(&Data{User: &dto}))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(string(payload), "<username>alice</username>") {
		t.Fatalf("user not serialized: %s", payload)
	}
	if strings.Contains(string(payload), "secret") {
		t.Fatalf("password leaked onto the wire: %s", payload)
	}
	decoded, err := DecodeResponse(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.OK() || decoded.Data == nil || decoded.Data.User.Username != "alice" {
		t.Fatalf("decoded response: %+v", decoded)
	}
}
