package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"regexp"
	"strings"
	"time"

	"scenesound/internal/apperror"
	"scenesound/internal/logger"
	"scenesound/internal/models"
)

// SceneInstruction is sent with every frame to the vision model.
const SceneInstruction = `You are scoring the soundtrack of someone's day through their smart glasses.
Look at this photo and describe the music that fits the moment.
Reply with a single JSON object and nothing else:
{"prompt": "<short music style prompt: genre, mood, instruments, tempo; at most 30 words>",
 "makeInstrumental": <true for background music, false if vocals would suit the scene>,
 "sceneDescription": "<one sentence describing what is in the photo>"}`

// VisionProvider sends one image plus instructions to a vision model and returns its raw text reply.
type VisionProvider interface {
	Name() string
	Describe(ctx context.Context, image []byte, mimeType, instruction string) (string, error)
}

type fallbackScene struct {
	prompt       string
	instrumental bool
	description  string
}

// fallbackScenes are served when the vision call fails.
var fallbackScenes = [4]fallbackScene{
	{"mellow lo-fi hip hop with warm keys and vinyl crackle", true, "An everyday moment, captured without a clear view of the scene."},
	{"uplifting acoustic folk with light percussion and hand claps", false, "A bright, open scene that could use a cheerful tune."},
	{"calm ambient electronic with soft pads and slow arpeggios", true, "A quiet scene with a relaxed atmosphere."},
	{"energetic indie pop with driving drums and jangly guitars", false, "A busy scene full of movement."},
}

var (
	instrumentalKeywords = wordPatterns("instrumental", "ambient", "classical", "orchestral", "piano", "lo-fi", "lofi", "jazz", "electronic", "cinematic", "soundtrack", "chill", "background")
	vocalKeywords        = wordPatterns("vocal", "vocals", "singing", "singer", "sung", "lyrics", "lyrical", "choir", "rap", "voice", "song about")

	whitespaceRun  = regexp.MustCompile(`\s+`)
	fifteenSeconds = regexp.MustCompile(`(?i)\b15\s*seconds?\b`)
	codeFence      = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
	dataURLPrefix  = regexp.MustCompile(`^data:([\w.+-]+/[\w.+-]+);base64,`)
)

const (
	wrappingQuotes  = "\"'`“”‘’"
	maxDescription  = 280
	defaultAnalysis = 30 * time.Second
)

type analysisReply struct {
	Prompt           string `json:"prompt"`
	MakeInstrumental *bool  `json:"makeInstrumental"`
	SceneDescription string `json:"sceneDescription"`
}

// AnalyzerService turns a frame into a music prompt. It never fails: any error is
// absorbed into one of the fallback scenes with FallbackConfidence.
type AnalyzerService struct {
	provider VisionProvider
	timeout  time.Duration
	logger   *logger.Logger
	now      func() time.Time
}

func NewAnalyzerService(provider VisionProvider, timeout time.Duration, logger *logger.Logger) *AnalyzerService {
	if timeout <= 0 {
		timeout = defaultAnalysis
	}
	return &AnalyzerService{
		provider: provider,
		timeout:  timeout,
		logger:   logger,
		now:      time.Now,
	}
}

// Analyze describes the base64-encoded image. A "data:<mime>;base64," prefix is accepted.
func (s *AnalyzerService) Analyze(ctx context.Context, imageBase64 string) *models.SceneAnalysisResult {
	start := s.now()

	result, err := s.analyze(ctx, imageBase64)
	if err != nil {
		s.logger.Warning("Using fallback scene: %v", &apperror.AnalysisError{Err: err})
		result = s.fallback()
	}

	result.Timestamp = s.now()
	result.ProcessingTimeMs = result.Timestamp.Sub(start).Milliseconds()
	return result
}

func (s *AnalyzerService) analyze(ctx context.Context, imageBase64 string) (*models.SceneAnalysisResult, error) {
	if s.provider == nil {
		return nil, errors.New("no vision provider configured")
	}

	image, mimeType, err := decodeImageBase64(imageBase64)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	text, err := s.provider.Describe(ctx, image, mimeType, SceneInstruction)
	if err != nil {
		return nil, err
	}

	result, err := ParseAnalysis(text)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Scene analyzed by %s: %q (instrumental=%t)", s.provider.Name(), result.Prompt, result.MakeInstrumental)
	return result, nil
}

func (s *AnalyzerService) fallback() *models.SceneAnalysisResult {
	scene := fallbackScenes[rand.IntN(len(fallbackScenes))]
	return &models.SceneAnalysisResult{
		Prompt:           scene.prompt,
		MakeInstrumental: scene.instrumental,
		SceneDescription: scene.description,
		Confidence:       models.FallbackConfidence,
	}
}

// ParseAnalysis reads a vision reply. JSON replies are used as-is, with the scene
// description standing in for a blank prompt; anything that is not JSON is taken as the
// prompt itself, with the instrumental flag inferred from keywords.
func ParseAnalysis(text string) (*models.SceneAnalysisResult, error) {
	trimmed := strings.TrimSpace(text)
	if m := codeFence.FindStringSubmatch(trimmed); m != nil {
		trimmed = m[1]
	}
	if trimmed == "" {
		return nil, errors.New("empty vision reply")
	}

	var reply analysisReply
	if err := json.Unmarshal([]byte(trimmed), &reply); err == nil {
		description := strings.TrimSpace(reply.SceneDescription)
		prompt := CleanPrompt(reply.Prompt)
		if prompt == "" {
			prompt = CleanPrompt(description)
		}
		if prompt == "" {
			return nil, errors.New("vision reply has neither prompt nor scene description")
		}
		instrumental := InferInstrumental(prompt)
		if reply.MakeInstrumental != nil {
			instrumental = *reply.MakeInstrumental
		}
		return &models.SceneAnalysisResult{
			Prompt:           prompt,
			MakeInstrumental: instrumental,
			SceneDescription: description,
			Confidence:       models.AnalysisConfidence,
		}, nil
	}

	prompt := CleanPrompt(trimmed)
	if prompt == "" {
		return nil, errors.New("vision reply has no usable prompt")
	}
	return &models.SceneAnalysisResult{
		Prompt:           prompt,
		MakeInstrumental: InferInstrumental(trimmed),
		SceneDescription: truncate(whitespaceRun.ReplaceAllString(trimmed, " "), maxDescription),
		Confidence:       models.AnalysisConfidence,
	}, nil
}

// CleanPrompt strips wrapping quotes, drops "15 seconds" fragments, collapses whitespace and lowercases.
func CleanPrompt(prompt string) string {
	p := strings.Trim(strings.TrimSpace(prompt), wrappingQuotes)
	p = fifteenSeconds.ReplaceAllString(p, "")
	p = whitespaceRun.ReplaceAllString(p, " ")
	return strings.ToLower(strings.TrimSpace(p))
}

// InferInstrumental leans instrumental unless vocal keywords outnumber instrumental ones.
// Keywords match whole words only.
func InferInstrumental(text string) bool {
	lower := strings.ToLower(text)
	instrumental, vocal := 0, 0
	for _, kw := range instrumentalKeywords {
		if kw.MatchString(lower) {
			instrumental++
		}
	}
	for _, kw := range vocalKeywords {
		if kw.MatchString(lower) {
			vocal++
		}
	}
	return vocal == 0 || instrumental >= vocal
}

func wordPatterns(words ...string) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, len(words))
	for i, w := range words {
		patterns[i] = regexp.MustCompile(`\b` + regexp.QuoteMeta(w) + `\b`)
	}
	return patterns
}

// decodeImageBase64 decodes raw or data-URL base64 and works out the MIME type.
func decodeImageBase64(encoded string) ([]byte, string, error) {
	encoded = strings.TrimSpace(encoded)
	mimeType := ""
	if m := dataURLPrefix.FindStringSubmatch(encoded); m != nil {
		mimeType = m[1]
		encoded = encoded[len(m[0]):]
	}
	if encoded == "" {
		return nil, "", errors.New("empty image")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, "", err
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return data, mimeType, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
