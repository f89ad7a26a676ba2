package ports

import "context"

// TranslateParams carries one machine-translation request.
type TranslateParams struct {
	SourceText string
	SourceLang string
	TargetLang string
	Context    string // optional disambiguation hint
	Model      string
}

// TranslateResult is the provider's answer.
type TranslateResult struct {
	Translation string
	Raw         string
}

// Provider is the generic machine-translation caller the engine falls back
// to when the translation memory has no acceptable match.
type Provider interface {
	Translate(ctx context.Context, p TranslateParams) (TranslateResult, error)
	Test(ctx context.Context) error
}
