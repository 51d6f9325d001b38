package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"unicode"

	"github.com/scholaris/school-gateway/pkg/types"
)

// MaxInputBytes caps request bodies read by the gateway
const MaxInputBytes = 1 << 20

// ReadInput merges the query string with the JSON or form body. Body values
// win on key conflicts. Strings are trimmed and stripped of control
// characters other than newline and tab.
func ReadInput(w http.ResponseWriter, r *http.Request) (map[string]interface{}, error) {
	input := make(map[string]interface{})
	mergeValues(input, r.URL.Query())

	if r.Body == nil || r.Body == http.NoBody {
		return input, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxInputBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, badInput(err)
		}
		mergeValues(input, r.PostForm)
	case "multipart/form-data":
		if err := r.ParseMultipartForm(MaxInputBytes); err != nil {
			return nil, badInput(err)
		}
		mergeValues(input, r.MultipartForm.Value)
	default:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, badInput(err)
		}
		if len(strings.TrimSpace(string(body))) == 0 {
			return input, nil
		}

		var decoded map[string]interface{}
		if err := json.Unmarshal(body, &decoded); err != nil {
			return nil, badInput(err)
		}
		for key, value := range decoded {
			input[sanitizeString(key)] = sanitizeValue(value)
		}
	}

	return input, nil
}

func mergeValues(dst map[string]interface{}, values map[string][]string) {
	for key, vals := range values {
		key = sanitizeString(key)
		if key == "" || len(vals) == 0 {
			continue
		}
		if len(vals) == 1 {
			dst[key] = sanitizeString(vals[0])
			continue
		}
		list := make([]interface{}, len(vals))
		for i, v := range vals {
			list[i] = sanitizeString(v)
		}
		dst[key] = list
	}
}

func sanitizeValue(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return sanitizeString(v)
	case []interface{}:
		for i := range v {
			v[i] = sanitizeValue(v[i])
		}
		return v
	case map[string]interface{}:
		clean := make(map[string]interface{}, len(v))
		for key, inner := range v {
			clean[sanitizeString(key)] = sanitizeValue(inner)
		}
		return clean
	default:
		return v
	}
}

func sanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if r != '\n' && r != '\t' && unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

func badInput(err error) *types.GatewayError {
	message := "request body could not be decoded"
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		message = "request body too large"
	}
	return types.NewValidationError(types.ErrCodeInvalidInput, message, nil)
}
