package visual

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"dailybrief/internal/config"
	"dailybrief/internal/limiter"
)

func testHTTP() *limiter.Client {
	opts := limiter.DefaultOptions()
	opts.MinHostDelay = 0
	opts.MaxAttempts = 1
	return limiter.New(opts)
}

func TestDecodeDataURL(t *testing.T) {
	payload := []byte{0x89, 0x50, 0x4e, 0x47}
	u := "data:image/png;base64," + base64.StdEncoding.EncodeToString(payload)

	got, err := decodeDataURL(u)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(payload) {
		t.Errorf("decoded %v, want %v", got, payload)
	}
}

func TestDecodeDataURLRejectsPlainURL(t *testing.T) {
	if _, err := decodeDataURL("https://example.com/image.png"); err == nil {
		t.Error("plain URL should be rejected")
	}
}

func TestGenerateProxy(t *testing.T) {
	imageBytes := []byte("webp-bytes")
	var gotReq proxyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer img-key" {
			t.Errorf("Authorization = %q", auth)
		}
		json.NewDecoder(r.Body).Decode(&gotReq)

		var resp proxyResponse
		resp.Choices = make([]struct {
			Message struct {
				Images []struct {
					ImageURL struct {
						URL string `json:"url"`
					} `json:"image_url"`
				} `json:"images"`
			} `json:"message"`
		}, 1)
		resp.Choices[0].Message.Images = make([]struct {
			ImageURL struct {
				URL string `json:"url"`
			} `json:"image_url"`
		}, 1)
		resp.Choices[0].Message.Images[0].ImageURL.URL =
			"data:image/webp;base64," + base64.StdEncoding.EncodeToString(imageBytes)
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewClient(config.Image{
		Mode: config.ImageModeProxy, APIKey: "img-key", Endpoint: srv.URL, Model: "img-model",
	}, testHTTP())

	got, err := c.Generate(context.Background(), Request{Prompt: "an abstract scene"})
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(imageBytes) {
		t.Errorf("image bytes = %q", got)
	}
	if gotReq.Model != "img-model" {
		t.Errorf("request model = %q", gotReq.Model)
	}
	if len(gotReq.Modalities) != 2 {
		t.Errorf("modalities = %v", gotReq.Modalities)
	}
}

func TestGenerateProxyNoImages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(proxyResponse{})
	}))
	defer srv.Close()

	c := NewClient(config.Image{
		Mode: config.ImageModeProxy, APIKey: "k", Endpoint: srv.URL, Model: "m",
	}, testHTTP())
	if _, err := c.Generate(context.Background(), Request{Prompt: "p"}); err == nil {
		t.Error("empty choices should error")
	}
}
