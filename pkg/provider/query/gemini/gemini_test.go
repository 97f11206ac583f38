package gemini_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/visionally/pkg/provider/query/gemini"
)

func TestNew_MissingAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := gemini.New(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty apiKey")
	}
}

func TestRequest_InlineImage(t *testing.T) {
	t.Parallel()

	type reqBody struct {
		Contents []struct {
			Role  string `json:"role"`
			Parts []struct {
				Text       string `json:"text"`
				InlineData *struct {
					MIMEType string `json:"mimeType"`
					Data     string `json:"data"`
				} `json:"inlineData"`
			} `json:"parts"`
		} `json:"contents"`
	}

	type captured struct {
		path string
		body reqBody
	}
	got := make(chan captured, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var c captured
		c.path = r.URL.Path
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &c.body)
		select {
		case got <- c:
		default:
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"A chair, 2 meters ahead."}]}}]}`)
	}))
	defer srv.Close()

	p, err := gemini.New(context.Background(), "test-key", gemini.WithBaseURL(srv.URL), gemini.WithModel("test-model"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	text, err := p.Request(context.Background(), []byte{0xFF, 0xD8}, "image/jpeg", "Identify the objects.")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if text != "A chair, 2 meters ahead." {
		t.Fatalf("Request = %q", text)
	}
	c := <-got
	path, body := c.path, c.body
	if !strings.Contains(path, "test-model:generateContent") {
		t.Errorf("path = %q, want test-model:generateContent", path)
	}
	if len(body.Contents) != 1 || len(body.Contents[0].Parts) != 2 {
		t.Fatalf("contents = %+v", body.Contents)
	}
	parts := body.Contents[0].Parts
	if parts[0].InlineData == nil || parts[0].InlineData.MIMEType != "image/jpeg" || parts[0].InlineData.Data != "/9g=" {
		t.Errorf("image part = %+v", parts[0].InlineData)
	}
	if parts[1].Text != "Identify the objects." {
		t.Errorf("text part = %q", parts[1].Text)
	}
}

func TestRequest_ServerError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"code":400,"message":"bad image","status":"INVALID_ARGUMENT"}}`)
	}))
	defer srv.Close()

	p, err := gemini.New(context.Background(), "test-key", gemini.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Request(context.Background(), []byte{1}, "image/jpeg", "x"); err == nil {
		t.Fatal("expected error")
	}
}
