package server

import (
	"context"
	"fmt"
	"strings"

	iriscore "github.com/petal-labs/iris/core"
	"github.com/petal-labs/iris/providers"
	// Auto-register common providers.
	_ "github.com/petal-labs/iris/providers/anthropic"
	_ "github.com/petal-labs/iris/providers/ollama"
	_ "github.com/petal-labs/iris/providers/openai"
	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TranslationResult is the outcome of a Translate call. DetectedLang is
// the source language actually used, whether detected or caller-supplied.
type TranslationResult struct {
	TranslatedText string
	DetectedLang   string
}

// Translator turns text from one language into another.
type Translator interface {
	// Translate converts text to targetLang. When sourceLang is "auto"
	// or empty the source language is detected first.
	Translate(ctx context.Context, text, sourceLang, targetLang string) (*TranslationResult, error)
}

const detectSystemPrompt = `You are a language detection expert. Detect the primary language of the following text and return only the language code (e.g., "en" for English, "he" for Hebrew). If the text contains multiple languages, focus on the most prominent language. If the text is a proper noun (e.g., a brand name like "Lenovo"), ambiguous, or empty, return "unknown" instead of guessing. Do not provide any explanations.`

const translateSystemPromptFmt = `You are a professional translator. Translate the user's message from %s to %s. If the text is a proper noun (e.g., a brand name like "Lenovo") or cannot be translated into a meaningful word in the target language, transliterate the text into the script of %s without translating the meaning. Respond only with the translated or transliterated text, without any explanation or context.`

// LLMTranslator implements Translator on top of an iris chat provider.
type LLMTranslator struct {
	provider iriscore.Provider
	model    iriscore.ModelID
	tracer   trace.Tracer
}

// NewLLMTranslator creates a translator backed by the named provider
// from the iris registry.
func NewLLMTranslator(providerName, apiKey, model string) (*LLMTranslator, error) {
	provider, err := providers.Create(providerName, apiKey)
	if err != nil {
		return nil, fmt.Errorf("creating provider %q: %w", providerName, err)
	}
	return &LLMTranslator{
		provider: provider,
		model:    iriscore.ModelID(model),
		tracer:   otelapi.Tracer("linguaflow/translator"),
	}, nil
}

// Translate detects the source language when asked to, short-circuits
// when source and target already match, and otherwise asks the model
// for a translation.
func (t *LLMTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (*TranslationResult, error) {
	ctx, span := t.tracer.Start(ctx, "translate",
		trace.WithAttributes(
			attribute.String("source_lang", sourceLang),
			attribute.String("target_lang", targetLang),
		),
	)
	defer span.End()

	detectedLang := sourceLang
	if sourceLang == "" || sourceLang == "auto" {
		lang, err := t.detectLanguage(ctx, text)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("detecting language: %w", err)
		}
		detectedLang = lang
		span.SetAttributes(attribute.String("detected_lang", detectedLang))
	}

	if detectedLang == targetLang {
		return &TranslationResult{TranslatedText: text, DetectedLang: detectedLang}, nil
	}

	resp, err := t.provider.Chat(ctx, t.chatRequest(
		fmt.Sprintf(translateSystemPromptFmt, detectedLang, targetLang, targetLang),
		text,
	))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("translating text: %w", err)
	}

	return &TranslationResult{
		TranslatedText: strings.TrimSpace(resp.Output),
		DetectedLang:   detectedLang,
	}, nil
}

func (t *LLMTranslator) detectLanguage(ctx context.Context, text string) (string, error) {
	ctx, span := t.tracer.Start(ctx, "detect_language")
	defer span.End()

	resp, err := t.provider.Chat(ctx, t.chatRequest(detectSystemPrompt, text))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	lang := strings.TrimSpace(resp.Output)
	// Undetectable text falls back to English so translation can proceed.
	if lang == "unknown" {
		lang = "en"
	}
	return lang, nil
}

func (t *LLMTranslator) chatRequest(system, user string) *iriscore.ChatRequest {
	return &iriscore.ChatRequest{
		Model: t.model,
		Messages: []iriscore.Message{
			{Role: iriscore.RoleSystem, Content: system},
			{Role: iriscore.RoleUser, Content: user},
		},
	}
}

var _ Translator = (*LLMTranslator)(nil)
