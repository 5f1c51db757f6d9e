package connection

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/jwalitptl/notifier/internal/model"
	"github.com/jwalitptl/notifier/pkg/errors"
	"github.com/jwalitptl/notifier/pkg/transport"
	"github.com/jwalitptl/notifier/pkg/validator"
)

// FrameNotification is the type reported for notification payloads, which
// carry no type field on the wire.
const FrameNotification = "notification"

type Frame struct {
	Type         string
	Notification model.Notification
	// Code and Message are set on error frames.
	Code    string
	Message string
}

type wireFrame struct {
	Type      string          `json:"type"`
	Code      string          `json:"code"`
	ID        json.RawMessage `json:"id"`
	Kind      string          `json:"kind"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	CreatedAt json.Number     `json:"createdAt"`
}

type notificationFrame struct {
	ID        string `json:"id" validate:"required"`
	Kind      string `json:"kind" validate:"required"`
	Title     string `json:"title" validate:"required"`
	CreatedAt int64  `json:"createdAt" validate:"gt=0"`
}

var frameValidator = validator.New()

// DecodeFrame parses one inbound frame. Errors wrap errors.Malformed.
func DecodeFrame(data []byte) (Frame, error) {
	var w wireFrame
	if err := json.Unmarshal(data, &w); err != nil {
		return Frame{}, errors.Decode("invalid frame json", err)
	}

	switch w.Type {
	case "":
	case transport.TypePing, transport.TypePong, transport.TypeAck:
		return Frame{Type: w.Type}, nil
	case transport.TypeError:
		return Frame{Type: w.Type, Code: w.Code, Message: w.Message}, nil
	default:
		return Frame{}, errors.Decode(fmt.Sprintf("unknown frame type %q", w.Type), nil)
	}

	id, err := decodeID(w.ID)
	if err != nil {
		return Frame{}, err
	}
	createdAt, err := decodeMillis(w.CreatedAt)
	if err != nil {
		return Frame{}, err
	}

	nf := notificationFrame{ID: id, Kind: w.Kind, Title: w.Title, CreatedAt: createdAt}
	if err := frameValidator.Validate(nf); err != nil {
		return Frame{}, errors.Decode("invalid notification", err)
	}

	kind, _ := model.ParseNotificationKind(w.Kind)
	return Frame{
		Type: FrameNotification,
		Notification: model.Notification{
			ID:        id,
			Kind:      kind,
			Title:     w.Title,
			Message:   w.Message,
			CreatedAt: createdAt,
		},
	}, nil
}

// decodeID accepts JSON strings and numbers.
func decodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", errors.Decode("invalid id", err)
		}
		return s, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", errors.Decode("id must be a string or number", err)
	}
	return n.String(), nil
}

func decodeMillis(n json.Number) (int64, error) {
	if n == "" {
		return 0, nil
	}
	if v, err := n.Int64(); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return 0, errors.Decode("invalid createdAt", err)
	}
	// Exponent forms such as 1.7e12 are fine as long as they name a whole
	// millisecond that fits in int64.
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, errors.Decode("invalid createdAt", fmt.Errorf("%s is not a whole millisecond timestamp", n))
	}
	return int64(f), nil
}
