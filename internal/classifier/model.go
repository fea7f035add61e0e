package classifier

import (
	"context"
	"strings"

	"github.com/timmy/harvester/internal/domain"
	"github.com/timmy/harvester/internal/llm"
	"github.com/timmy/harvester/internal/logger"
	"github.com/timmy/harvester/internal/prompts"
)

// maxPromptText bounds the post text sent to the model, in runes.
const maxPromptText = 4000

// ModelClassifier is a stage backed by a generative model.
type ModelClassifier struct {
	stage     string
	template  string
	model     llm.Model
	maxTokens int
	logger    *logger.Logger
}

// NewThemeClassifier creates the content-type/theme stage.
func NewThemeClassifier(model llm.Model, maxTokens int, log *logger.Logger) *ModelClassifier {
	return newModelClassifier(StageTheme, prompts.ThemePrompt, model, maxTokens, log)
}

// NewClaimsClassifier creates the claim/severity stage.
func NewClaimsClassifier(model llm.Model, maxTokens int, log *logger.Logger) *ModelClassifier {
	return newModelClassifier(StageClaims, prompts.ClaimsPrompt, model, maxTokens, log)
}

func newModelClassifier(stage, template string, model llm.Model, maxTokens int, log *logger.Logger) *ModelClassifier {
	if maxTokens <= 0 {
		maxTokens = 400
	}
	return &ModelClassifier{
		stage:     stage,
		template:  template,
		model:     model,
		maxTokens: maxTokens,
		logger:    log,
	}
}

// Name implements Classifier.
func (m *ModelClassifier) Name() string {
	return m.stage
}

func (m *ModelClassifier) log(ctx context.Context) *logger.Logger {
	return logger.FromContextOr(ctx, m.logger)
}

// Classify implements Classifier. Model errors and undecodable responses
// both yield Default(m.Name()).
func (m *ModelClassifier) Classify(ctx context.Context, text string, c Context) domain.ClassificationResult {
	text = strings.TrimSpace(text)
	if text == "" {
		return Default(m.stage)
	}
	if r := []rune(text); len(r) > maxPromptText {
		text = string(r[:maxPromptText])
	}

	prompt := prompts.Build(m.template, text, prompts.Hints{
		Source:     c.Source,
		Competitor: c.Competitor,
		Tags:       c.Tags,
	})

	content, err := m.model.Complete(ctx, prompt, m.maxTokens)
	if err != nil {
		m.log(ctx).WithFields(logger.Fields{
			logger.FieldItemID: c.ItemID,
			"classifier":       m.stage,
		}).WithError(err).Warn("Model call failed, using default classification")
		return Default(m.stage)
	}

	result, err := parseResponse(m.stage, content)
	if err != nil {
		m.log(ctx).WithFields(logger.Fields{
			logger.FieldItemID: c.ItemID,
			"classifier":       m.stage,
		}).WithError(err).Warn("Unparseable model response, using default classification")
		return Default(m.stage)
	}
	return result
}
