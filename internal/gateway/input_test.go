package gateway

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/scholaris/school-gateway/pkg/types"
)

func TestReadInput_QueryAndJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/students/create?term=2&tag=a&tag=b&name=query",
		strings.NewReader(`{"name":"  Ada\u0000 ","notes":"line one\nline two","address":{"city":" Lagos "}}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	input, err := ReadInput(httptest.NewRecorder(), req)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if input["term"] != "2" {
		t.Errorf("Expected term 2, got %v", input["term"])
	}
	if tags, ok := input["tag"].([]interface{}); !ok || len(tags) != 2 {
		t.Errorf("Expected repeated query values as a list, got %v", input["tag"])
	}
	if input["name"] != "Ada" {
		t.Errorf("Expected body to win and be sanitized, got %q", input["name"])
	}
	if input["notes"] != "line one\nline two" {
		t.Errorf("Expected newlines preserved, got %q", input["notes"])
	}
	address, ok := input["address"].(map[string]interface{})
	if !ok || address["city"] != "Lagos" {
		t.Errorf("Expected nested values sanitized, got %v", input["address"])
	}
}

func TestReadInput_Form(t *testing.T) {
	form := url.Values{"username": {" teacher "}, "remember": {"1"}}
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	input, err := ReadInput(httptest.NewRecorder(), req)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if input["username"] != "teacher" || input["remember"] != "1" {
		t.Errorf("Unexpected form input: %v", input)
	}
}

func TestReadInput_Multipart(t *testing.T) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("title", "Term report"); err != nil {
		t.Fatalf("Failed to write field: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/reports/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	input, err := ReadInput(httptest.NewRecorder(), req)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if input["title"] != "Term report" {
		t.Errorf("Expected multipart field, got %v", input["title"])
	}
}

func TestReadInput_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"malformed json", `{"name":`, "request body could not be decoded"},
		{"json array", `["a","b"]`, "request body could not be decoded"},
		{"too large", `{"blob":"` + strings.Repeat("x", MaxInputBytes) + `"}`, "request body too large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/students/create", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")

			_, err := ReadInput(httptest.NewRecorder(), req)
			gwErr := types.AsGatewayError(err)
			if gwErr.StatusCode() != http.StatusBadRequest {
				t.Fatalf("Expected 400, got %d", gwErr.StatusCode())
			}
			if gwErr.Message != tt.message {
				t.Errorf("Expected message %q, got %q", tt.message, gwErr.Message)
			}
		})
	}
}

func TestReadInput_EmptyBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/students/create?x=1", strings.NewReader("   "))
	req.Header.Set("Content-Type", "application/json")

	input, err := ReadInput(httptest.NewRecorder(), req)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(input) != 1 || input["x"] != "1" {
		t.Errorf("Expected query-only input, got %v", input)
	}
}
