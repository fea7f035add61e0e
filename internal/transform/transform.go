// Package transform maps enriched, classified items into canonical records.
package transform

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/harvester/internal/domain"
	"github.com/timmy/harvester/internal/logger"
)

// recordNamespace scopes deterministic record IDs.
var recordNamespace = uuid.MustParse("6f1c2f4e-8c1d-5b7a-9e2a-3d4c5b6a7f80")

// RecordID returns the deterministic record ID for an item of a source.
// Republishing the same item therefore updates the same repository row.
func RecordID(source, externalID string) string {
	return uuid.NewSHA1(recordNamespace, []byte(source+":"+externalID)).String()
}

// Options bounds the record fields.
type Options struct {
	MaxTitle   int
	MaxContent int
	MaxTags    int
	MaxTagLen  int
	MaxURL     int
}

// DefaultOptions returns the standard record limits.
func DefaultOptions() Options {
	return Options{
		MaxTitle:   domain.MaxTitleLength,
		MaxContent: 10000,
		MaxTags:    10,
		MaxTagLen:  32,
		MaxURL:     domain.MaxURLLength,
	}
}

// Transformer is the pure mapping stage.
type Transformer struct {
	opts   Options
	logger *logger.Logger
	now    func() time.Time
}

// New creates a Transformer. Zero option fields take DefaultOptions values.
func New(opts Options, log *logger.Logger) *Transformer {
	def := DefaultOptions()
	if opts.MaxTitle <= 0 || opts.MaxTitle > domain.MaxTitleLength {
		opts.MaxTitle = def.MaxTitle
	}
	if opts.MaxContent <= 0 {
		opts.MaxContent = def.MaxContent
	}
	if opts.MaxTags <= 0 {
		opts.MaxTags = def.MaxTags
	}
	if opts.MaxTagLen <= 0 {
		opts.MaxTagLen = def.MaxTagLen
	}
	if opts.MaxURL <= 0 || opts.MaxURL > domain.MaxURLLength {
		opts.MaxURL = def.MaxURL
	}
	return &Transformer{opts: opts, logger: log, now: time.Now}
}

func (t *Transformer) log(ctx context.Context) *logger.Logger {
	return logger.FromContextOr(ctx, t.logger)
}

// Transform maps every item. A failing item is logged and dropped.
// Returns:
//   - []domain.CanonicalRecord: records with zero score and unset compliance.
//   - int: number of items that failed.
func (t *Transformer) Transform(ctx context.Context, items []domain.EnrichedItem, cls domain.Classifications) ([]domain.CanonicalRecord, int) {
	out := make([]domain.CanonicalRecord, 0, len(items))
	failed := 0
	for _, item := range items {
		rec, err := t.transformOne(item, cls[item.ID()])
		if err != nil {
			failed++
			t.log(ctx).WithFields(logger.Fields{
				logger.FieldItemID: item.ID(),
			}).WithError(err).Warn("Failed to transform item")
			continue
		}
		out = append(out, rec)
	}
	return out, failed
}

func (t *Transformer) transformOne(item domain.EnrichedItem, results []domain.ClassificationResult) (rec domain.CanonicalRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during transform: %v", r)
		}
	}()

	if item.ID() == "" {
		return rec, fmt.Errorf("item has no external ID")
	}
	link, err := t.normaliseURL(item.Item.URL)
	if err != nil {
		return rec, err
	}

	text := item.PrimaryText()
	headline := strings.TrimSpace(item.Title)
	if headline == "" {
		headline = firstLine(text)
	}
	title := Truncate(headline, t.opts.MaxTitle)
	if title == "" {
		title = fallbackTitle(item)
	}

	content := text
	var summaries []string
	for _, r := range results {
		if r.Summary != "" && !r.Fallback {
			summaries = append(summaries, fmt.Sprintf("[%s] %s", r.Stage, r.Summary))
		}
	}
	if len(summaries) > 0 {
		content = strings.TrimSpace(content + "\n\n---\n" + strings.Join(summaries, "\n"))
	}

	tagSources := append([]string(nil), item.Item.Tags...)
	if item.Item.Competitor != "" {
		tagSources = append(tagSources, item.Item.Competitor)
	}
	for _, r := range results {
		tagSources = append(tagSources, r.Topics...)
	}

	return domain.CanonicalRecord{
		ID:          RecordID(item.Item.Source, item.ID()),
		ExternalID:  item.ID(),
		Source:      item.Item.Source,
		Title:       title,
		Content:     Truncate(content, t.opts.MaxContent),
		URL:         link,
		Tags:        SanitizeTags(tagSources, t.opts.MaxTags, t.opts.MaxTagLen),
		Metadata:    buildMetadata(item, results),
		CreatedAt:   t.now().UTC(),
		PublishedAt: item.Item.PublishedAt,
	}, nil
}

// normaliseURL validates a URL and drops its query and fragment when it is too long.
func (t *Transformer) normaliseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if len(raw) <= t.opts.MaxURL {
		return raw, nil
	}
	u.RawQuery = ""
	u.Fragment = ""
	if s := u.String(); len(s) <= t.opts.MaxURL {
		return s, nil
	}
	return "", fmt.Errorf("URL exceeds %d characters", t.opts.MaxURL)
}

func fallbackTitle(item domain.EnrichedItem) string {
	if item.Author.Handle != "" {
		return fmt.Sprintf("%s post by %s", item.Item.Source, item.Author.Handle)
	}
	return fmt.Sprintf("%s item %s", item.Item.Source, item.ID())
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

// Truncate shortens s to at most max runes, ending in an ellipsis when cut.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 1 {
		return string(r[:max])
	}
	return strings.TrimRightFunc(string(r[:max-1]), isSpace) + "…"
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

// SanitizeTags lowercases tags, strips non-word characters, bounds their
// length and removes duplicates, keeping at most maxTags.
func SanitizeTags(tags []string, maxTags, maxLen int) []string {
	out := make([]string, 0, maxTags)
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		if len(out) >= maxTags {
			break
		}
		clean := nonWord.ReplaceAllString(strings.ToLower(tag), "")
		if r := []rune(clean); len(r) > maxLen {
			clean = string(r[:maxLen])
		}
		if clean == "" {
			continue
		}
		if _, ok := seen[clean]; ok {
			continue
		}
		seen[clean] = struct{}{}
		out = append(out, clean)
	}
	return out
}
