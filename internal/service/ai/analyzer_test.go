package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"scenesound/internal/logger"
	"scenesound/internal/models"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVision struct {
	reply    string
	err      error
	calls    int
	gotImage []byte
	gotMime  string
}

func (f *fakeVision) Name() string { return "fake" }

func (f *fakeVision) Describe(ctx context.Context, image []byte, mimeType, instruction string) (string, error) {
	f.calls++
	f.gotImage = image
	f.gotMime = mimeType
	return f.reply, f.err
}

var jpegMagic = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

func isFallback(r *models.SceneAnalysisResult) bool {
	for _, f := range fallbackScenes {
		if r.Prompt == f.prompt && r.MakeInstrumental == f.instrumental && r.SceneDescription == f.description {
			return true
		}
	}
	return false
}

func TestAnalyze_NetworkErrorFallsBack(t *testing.T) {
	provider := &fakeVision{err: errors.New("dial tcp: connection refused")}
	s := NewAnalyzerService(provider, time.Second, logger.NewNop())

	for i := 0; i < 20; i++ {
		res := s.Analyze(context.Background(), base64.StdEncoding.EncodeToString(jpegMagic))
		require.NotNil(t, res)
		assert.True(t, isFallback(res), "unexpected result %+v", res)
		assert.Equal(t, models.FallbackConfidence, res.Confidence)
		assert.True(t, res.IsFallback())
		assert.False(t, res.Timestamp.IsZero())
	}
	assert.Equal(t, 20, provider.calls)
}

func TestAnalyze_JSONReply(t *testing.T) {
	provider := &fakeVision{reply: `{"prompt": "\"Upbeat   Surf Rock\nwith 15 seconds of reverb guitar\"", "makeInstrumental": false, "sceneDescription": "A beach with surfers."}`}
	s := NewAnalyzerService(provider, time.Second, logger.NewNop())

	res := s.Analyze(context.Background(), base64.StdEncoding.EncodeToString(jpegMagic))

	assert.Equal(t, "upbeat surf rock with of reverb guitar", res.Prompt)
	assert.False(t, res.MakeInstrumental)
	assert.Equal(t, "A beach with surfers.", res.SceneDescription)
	assert.Equal(t, models.AnalysisConfidence, res.Confidence)
	assert.Equal(t, jpegMagic, provider.gotImage)
	assert.Equal(t, "image/jpeg", provider.gotMime)
}

func TestAnalyze_DataURLPrefix(t *testing.T) {
	provider := &fakeVision{reply: `{"prompt":"soft piano","makeInstrumental":true,"sceneDescription":"a library"}`}
	s := NewAnalyzerService(provider, time.Second, logger.NewNop())

	res := s.Analyze(context.Background(), "data:image/webp;base64,"+base64.StdEncoding.EncodeToString([]byte("webpbytes")))

	assert.Equal(t, "soft piano", res.Prompt)
	assert.Equal(t, "image/webp", provider.gotMime)
	assert.Equal(t, []byte("webpbytes"), provider.gotImage)
}

func TestAnalyze_InvalidBase64FallsBackWithoutCalling(t *testing.T) {
	provider := &fakeVision{reply: `{"prompt":"x"}`}
	s := NewAnalyzerService(provider, time.Second, logger.NewNop())

	res := s.Analyze(context.Background(), "%%% not base64 %%%")

	assert.True(t, isFallback(res))
	assert.Zero(t, provider.calls)
}

func TestAnalyze_NilProviderFallsBack(t *testing.T) {
	s := NewAnalyzerService(nil, 0, logger.NewNop())
	res := s.Analyze(context.Background(), base64.StdEncoding.EncodeToString(jpegMagic))
	assert.True(t, isFallback(res))
}

func TestParseAnalysis_FreeText(t *testing.T) {
	res, err := ParseAnalysis("  'Dreamy ambient\n\n  synthwave for a night drive'  ")
	require.NoError(t, err)
	assert.Equal(t, "dreamy ambient synthwave for a night drive", res.Prompt)
	assert.True(t, res.MakeInstrumental)
	assert.Equal(t, models.AnalysisConfidence, res.Confidence)

	res, err = ParseAnalysis("a pop song about summer with female vocals")
	require.NoError(t, err)
	assert.False(t, res.MakeInstrumental)
}

func TestParseAnalysis_FencedJSON(t *testing.T) {
	res, err := ParseAnalysis("```json\n{\"prompt\":\"Jazz trio\",\"sceneDescription\":\"a cafe\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "jazz trio", res.Prompt)
	assert.Equal(t, "a cafe", res.SceneDescription)
	// makeInstrumental missing: inferred from the prompt
	assert.True(t, res.MakeInstrumental)
}

func TestParseAnalysis_BlankJSONPromptUsesSceneDescription(t *testing.T) {
	res, err := ParseAnalysis(`{"prompt": "", "makeInstrumental": false, "sceneDescription": "A park"}`)
	require.NoError(t, err)
	assert.Equal(t, "a park", res.Prompt)
	assert.False(t, res.MakeInstrumental)
	assert.Equal(t, "A park", res.SceneDescription)

	_, err = ParseAnalysis(`{"prompt": " ", "makeInstrumental": true}`)
	assert.Error(t, err)
}

func TestParseAnalysis_Empty(t *testing.T) {
	_, err := ParseAnalysis("   ")
	assert.Error(t, err)
	_, err = ParseAnalysis(`""`)
	assert.Error(t, err)
}

func TestCleanPrompt(t *testing.T) {
	tests := []struct{ in, want string }{
		{`"Chill Lo-Fi Beats"`, "chill lo-fi beats"},
		{"15 seconds of happy ukulele", "of happy ukulele"},
		{"Epic   orchestral\n\ttrailer", "epic orchestral trailer"},
		{"`cinematic strings, 15 Seconds`", "cinematic strings,"},
		{"  already clean  ", "already clean"},
		{"“smart quotes”", "smart quotes"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanPrompt(tt.in), "input %q", tt.in)
	}
}

func TestInferInstrumental(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"upbeat funk groove", true},
		{"ambient piano", true},
		{"acoustic ballad with soft vocals", false},
		{"choir singing a hymn", false},
		{"ambient track with a vocal chop", true},
		{"kid in sunglasses at the beach", true},
		{"trap beat for a grape stand wrapped in fog", true},
		{"a rap verse over a trap beat", false},
		{"", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, InferInstrumental(tt.text), "text %q", tt.text)
	}
}

func TestOpenAIProvider_Describe(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		gotBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"{\"prompt\":\"warm jazz\"}"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("sk-test", "gpt-4o-mini", option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
	text, err := p.Describe(context.Background(), jpegMagic, "image/jpeg", "describe")

	require.NoError(t, err)
	assert.Equal(t, `{"prompt":"warm jazz"}`, text)
	assert.Contains(t, gotBody, "data:image/jpeg;base64,")
	assert.Contains(t, gotBody, `"describe"`)
}

func TestProviders_RequireKeys(t *testing.T) {
	_, err := NewOpenAIProvider("", "gpt-4o-mini").Describe(context.Background(), jpegMagic, "image/jpeg", "x")
	assert.Error(t, err)

	_, err = NewGeminiProvider("", "gemini-2.0-flash").Describe(context.Background(), jpegMagic, "image/jpeg", "x")
	assert.Error(t, err)
}
