package message

import (
	"fmt"
	"strconv"
	"time"

	"github.com/mailru/easyjson/buffer"
	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"
	"github.com/moontrade/backbone/transport"
)

// Entry field names.
const (
	FieldType = "type"
	FieldData = "data"
	FieldEnc  = "enc"
	FieldTS   = "ts"
)

// Options control Encode.
type Options struct {
	// Codec compresses bodies longer than CompressAbove bytes.
	Codec         Codec
	CompressAbove int
	// Now stamps the "ts" field. Nil uses time.Now.
	Now func() time.Time
}

// Envelope is a decoded entry.
type Envelope struct {
	Type Type
	// Produced is the producer's clock when the message was encoded, zero
	// when the entry carried no "ts".
	Produced time.Time
	// Body is the decompressed JSON payload, suitable for Peek.
	Body    []byte
	Message Message
}

// Marshal writes the JSON form of m, reusing into when it is large enough.
func Marshal(m Message, into []byte) ([]byte, error) {
	w := jwriter.Writer{
		Buffer: buffer.Buffer{
			Buf: into[:0],
		},
	}
	m.MarshalEasyJSON(&w)
	return w.BuildBytes()
}

// Unmarshal decodes data into m without validating it.
func Unmarshal(data []byte, m Message) error {
	lexer := jlexer.Lexer{
		Data:              data,
		UseMultipleErrors: false,
	}
	m.UnmarshalEasyJSON(&lexer)
	return lexer.Error()
}

// Encode validates m and builds the entry fields for it.
func Encode(m Message, opts Options) (transport.Fields, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	body, err := Marshal(m, nil)
	if err != nil {
		return nil, err
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	fields := make(transport.Fields, 0, 8)
	fields = append(fields,
		FieldType, string(m.Type()),
		FieldTS, strconv.FormatInt(now().UnixMilli(), 10),
	)
	if opts.Codec != CodecNone && len(body) > opts.CompressAbove {
		out, ok, err := compress(opts.Codec, body)
		if err != nil {
			return nil, fmt.Errorf("compress %s: %w", opts.Codec, err)
		}
		if ok {
			fields = append(fields, FieldEnc, string(opts.Codec))
			body = out
		}
	}
	return append(fields, FieldData, string(body)), nil
}

// Decode parses and validates an entry. Every failure wraps ErrMalformed or
// ErrUnknownType.
func Decode(fields transport.Fields) (*Envelope, error) {
	tag, ok := fields.Get(FieldType)
	if !ok {
		return nil, fmt.Errorf("%w: missing %q field", ErrMalformed, FieldType)
	}
	m, err := New(Type(tag))
	if err != nil {
		return nil, err
	}
	data, ok := fields.Get(FieldData)
	if !ok {
		return nil, fmt.Errorf("%w: missing %q field", ErrMalformed, FieldData)
	}
	env := &Envelope{Type: m.Type(), Message: m}
	if ts, ok := fields.Get(FieldTS); ok {
		ms, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad %q field %q", ErrMalformed, FieldTS, ts)
		}
		env.Produced = time.UnixMilli(ms)
	}
	body := []byte(data)
	if enc := fields.Value(FieldEnc); enc != "" {
		if body, err = decompress(Codec(enc), body); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, enc, err)
		}
	}
	if err := Unmarshal(body, m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, tag, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	env.Body = body
	return env, nil
}
