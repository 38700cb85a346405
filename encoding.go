package redistruct

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Marshaler interface specifies encoding to byte array and back to the object.
type Marshaler interface {
	// Encodes any object to byte array.
	Marshal(v any) ([]byte, error)
	// Decodes byte array back to its Object type.
	Unmarshal(data []byte, v any) error
}

type defaultMarshaller struct{}

// Returns the default marshaller which uses the golang's json package.
func NewMarshaler() Marshaler {
	return &defaultMarshaller{}
}

// Encodes any object to a byte array.
func (m defaultMarshaller) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decodes a byte array back to its Object type.
func (m defaultMarshaller) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

var marshaler = NewMarshaler()

// encodeValue turns one field value into its stored string form. Scalars are
// stringified directly so stored hashes stay human-readable; everything else
// goes through the Marshaler.
func encodeValue(v any) (string, error) {
	switch tv := v.(type) {
	case nil:
		return "", nil
	case string:
		return tv, nil
	case []byte:
		return string(tv), nil
	case bool:
		return strconv.FormatBool(tv), nil
	case int:
		return strconv.Itoa(tv), nil
	case int32:
		return strconv.FormatInt(int64(tv), 10), nil
	case int64:
		return strconv.FormatInt(tv, 10), nil
	case uint64:
		return strconv.FormatUint(tv, 10), nil
	case float32:
		return strconv.FormatFloat(float64(tv), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64), nil
	case time.Time:
		return strconv.FormatInt(tv.Unix(), 10), nil
	case fmt.Stringer:
		return tv.String(), nil
	}
	ba, err := marshaler.Marshal(v)
	if err != nil {
		return "", Error{Code: Unknown, Err: err, UserData: "encode field value"}
	}
	return string(ba), nil
}
