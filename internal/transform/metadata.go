package transform

import (
	"strings"

	"github.com/timmy/harvester/internal/domain"
)

// Metadata keys shared with the validator and scorer.
const (
	MetaQuery           = "query"
	MetaCompetitor      = "competitor"
	MetaTier            = "tier"
	MetaAuthor          = "author"
	MetaAuthorFollowers = "author_followers"
	MetaAuthorVerified  = "author_verified"
	MetaEngagement      = "engagement_total"
	MetaLikes           = "engagement_likes"
	MetaShares          = "engagement_shares"
	MetaComments        = "engagement_comments"
	MetaViews           = "engagement_views"
	MetaKeywords        = "keywords"
	MetaCategory        = "category"
	MetaConfidence      = "confidence"
	MetaMatched         = "matched_patterns"
	MetaSeverity        = "severity"
	MetaFallbacks       = "classifier_fallbacks"
	MetaFetchedAt       = "fetched_at"

	// MetaRelevanceFallback is set by the scorer when the base score is the fallback.
	MetaRelevanceFallback = "relevance_fallback"

	// MetaReviewPrefix + stage name holds each stage's own review flag.
	// Flags from different stages are never merged.
	MetaReviewPrefix = "review."
	// MetaSourcePrefix + key holds source-specific detail fields.
	MetaSourcePrefix = "source."
)

var severityRank = map[domain.Severity]int{
	domain.SeverityNone:   0,
	domain.SeverityLow:    1,
	domain.SeverityMedium: 2,
	domain.SeverityHigh:   3,
}

func buildMetadata(item domain.EnrichedItem, results []domain.ClassificationResult) map[string]any {
	meta := map[string]any{
		MetaQuery:           item.Item.Query,
		MetaTier:            int64(item.Item.Tier),
		MetaAuthor:          item.Author.Handle,
		MetaAuthorFollowers: item.Author.Followers,
		MetaAuthorVerified:  item.Author.Verified,
		MetaEngagement:      item.Engagement.Total(),
		MetaLikes:           item.Engagement.Likes,
		MetaShares:          item.Engagement.Shares,
		MetaComments:        item.Engagement.Comments,
		MetaViews:           item.Engagement.Views,
		MetaKeywords:        append([]string{}, item.Keywords...),
		MetaFetchedAt:       item.FetchedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	if item.Item.Competitor != "" {
		meta[MetaCompetitor] = item.Item.Competitor
	}
	for k, v := range item.Extra {
		meta[MetaSourcePrefix+k] = v
	}

	category, confidence := "", 0.0
	severity := domain.SeverityNone
	matched := []string{}
	fallbacks := int64(0)
	for _, r := range results {
		if r.Fallback {
			fallbacks++
		} else if category == "" {
			category, confidence = r.Category, r.Confidence
		}
		if severityRank[r.Severity] > severityRank[severity] {
			severity = r.Severity
		}
		matched = append(matched, r.MatchedPatterns...)
		meta[MetaReviewPrefix+r.Stage] = r.RequiresReview
	}
	if category == "" && len(results) > 0 {
		category, confidence = results[0].Category, results[0].Confidence
	}

	if len(results) > 0 {
		meta[MetaCategory] = category
		meta[MetaConfidence] = confidence
		meta[MetaSeverity] = string(severity)
		meta[MetaMatched] = matched
		meta[MetaFallbacks] = fallbacks
	}
	return meta
}

// ReviewFlags returns the per-stage review flags stored on a record.
func ReviewFlags(r domain.CanonicalRecord) map[string]bool {
	flags := map[string]bool{}
	for k, v := range r.Metadata {
		stage, ok := strings.CutPrefix(k, MetaReviewPrefix)
		if !ok || stage == "" {
			continue
		}
		if b, ok := v.(bool); ok {
			flags[stage] = b
		}
	}
	return flags
}
