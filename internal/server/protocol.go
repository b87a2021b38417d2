// Package server speaks the pharmacore wire protocol: length-prefixed XML
// request/response envelopes over TCP. Each frame is a 4-byte big-endian
// payload length followed by a UTF-8 XML document.
package server

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"

	"pharmacore/pkg/domain"
)

// Response status values.
const (
	StatusSuccess = "SUCCESS"
	StatusError   = "ERROR"
)

// Param is one named request argument.
type Param struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

// Request is the client-to-server envelope.
type Request struct {
	XMLName xml.Name `xml:"request"`
	Action  string   `xml:"action"`
	Params  []Param  `xml:"param"`
}

// NewRequest builds a request with params given as alternating name, value
// pairs.
func NewRequest(action string, kv ...string) Request {
	req := Request{Action: action}
	for i := 0; i+1 < len(kv); i += 2 {
		req.Params = append(req.Params, Param{Name: kv[i], Value: kv[i+1]})
	}
	return req
}

// Get returns the named param value, or the empty string.
func (r Request) Get(name string) string {
	for _, p := range r.Params {
		if p.Name == name {
			return p.Value
		}
	}
	return ""
}

// Int64 parses the named param as an id.
func (r Request) Int64(name string) (int64, error) {
	v := r.Get(name)
	if v == "" {
		return 0, domain.Validationf(name, "required")
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, domain.Validationf(name, "not a number: %q", v)
	}
	return parsed, nil
}

// Int parses the named param as an int.
func (r Request) Int(name string) (int, error) {
	v, err := r.Int64(name)
	return int(v), err
}

// Float parses the named param as a float.
func (r Request) Float(name string) (float64, error) {
	v := r.Get(name)
	if v == "" {
		return 0, domain.Validationf(name, "required")
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, domain.Validationf(name, "not a number: %q", v)
	}
	return parsed, nil
}

// Bool parses the named param as a boolean; missing params are false.
func (r Request) Bool(name string) (bool, error) {
	v := r.Get(name)
	if v == "" {
		return false, nil
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return false, domain.Validationf(name, "not a boolean: %q", v)
	}
	return parsed, nil
}

// Bytes decodes the named param from base64.
func (r Request) Bytes(name string) ([]byte, error) {
	v := r.Get(name)
	if v == "" {
		return nil, domain.Validationf(name, "required")
	}
	data, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return nil, domain.Validationf(name, "not valid base64")
	}
	return data, nil
}

// Response is the server-to-client envelope.
type Response struct {
	XMLName xml.Name `xml:"response"`
	Status  string   `xml:"status"`
	Message string   `xml:"message,omitempty"`
	Data    *Data    `xml:"data,omitempty"`
}

// OK reports whether the response carries a success status.
func (r Response) OK() bool { return r.Status == StatusSuccess }

func successResponse(data *Data) Response {
	return Response{Status: StatusSuccess, Data: data}
}

func errorResponse(msg string) Response {
	return Response{Status: StatusError, Message: msg}
}

// ReadFrame reads one length-prefixed frame, rejecting frames larger than
// max bytes.
func ReadFrame(r io.Reader, max int) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size == 0 {
		return nil, fmt.Errorf("empty frame")
	}
	if int64(size) > int64(max) {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit %d", size, max)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// WriteFrame writes one length-prefixed frame.
func WriteFrame(w io.Writer, payload []byte) error {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// EncodeRequest marshals a request envelope.
func EncodeRequest(req Request) ([]byte, error) {
	return xml.Marshal(req)
}

// DecodeRequest unmarshals a request envelope.
func DecodeRequest(payload []byte) (Request, error) {
	var req Request
	if err := xml.Unmarshal(payload, &req); err != nil {
		return Request{}, fmt.Errorf("malformed request envelope: %w", err)
	}
	if req.Action == "" {
		return Request{}, fmt.Errorf("request carries no action")
	}
	return req, nil
}

// EncodeResponse marshals a response envelope.
func EncodeResponse(resp Response) ([]byte, error) {
	return xml.Marshal(resp)
}

// DecodeResponse unmarshals a response envelope.
func DecodeResponse(payload []byte) (Response, error) {
	var resp Response
	if err := xml.Unmarshal(payload, &resp); err != nil {
		return Response{}, fmt.Errorf("malformed response envelope: %w", err)
	}
	return resp, nil
}
