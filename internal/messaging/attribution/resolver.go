package attribution

import (
	"context"
	"strings"
	"time"

	"leadflow_backend/internal/messaging/domain"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/phone"
	"leadflow_backend/platform/textmatch"

	"github.com/google/uuid"
)

// CreativeSource provides the creative and direction lookups the resolver
// needs. Satisfied by *Repository.
type CreativeSource interface {
	CreativeByPlatformID(ctx context.Context, accountID uuid.UUID, platformAdID string) (*Creative, error)
	ActiveDirections(ctx context.Context, accountID uuid.UUID) ([]Direction, error)
}

// ContactHistory reports the last recorded message time for a contact.
// Satisfied by the dialog repository.
type ContactHistory interface {
	LastMessageAt(ctx context.Context, instanceID, contact string) (*time.Time, error)
}

// Match is one scored fallback candidate, exported for admin inspection.
type Match struct {
	DirectionID uuid.UUID
	Score       float64
}

// Resolver implements both attribution paths.
type Resolver struct {
	creatives CreativeSource
	history   ContactHistory
	threshold float64
	silence   time.Duration
	log       *logger.Logger
	now       func() time.Time
}

// NewResolver creates a resolver with the configured similarity threshold
// and silence window.
func NewResolver(creatives CreativeSource, history ContactHistory, threshold float64, silence time.Duration, log *logger.Logger) *Resolver {
	return &Resolver{
		creatives: creatives,
		history:   history,
		threshold: threshold,
		silence:   silence,
		log:       log,
		now:       time.Now,
	}
}

// paidSourceTypes are the referral source types recognized as paid
// advertisement traffic. An absent source type is trusted as paid.
var paidSourceTypes = map[string]bool{
	"ad":            true,
	"advertisement": true,
	"ctwa":          true,
}

func isPaidSourceType(sourceType string) bool {
	if strings.TrimSpace(sourceType) == "" {
		return true
	}
	return paidSourceTypes[strings.ToLower(sourceType)]
}

// Resolve attributes one inbound message. Ad metadata, when present and of a
// paid source type, always wins; otherwise the text-similarity fallback runs
// for first-contact candidates. A message that matches neither path is
// unresolved, which is not an error.
func (r *Resolver) Resolve(ctx context.Context, accountID uuid.UUID, msg domain.InboundMessage) (domain.AttributionResult, error) {
	if ref := msg.Referral; ref != nil && ref.SourceID != "" && isPaidSourceType(ref.SourceType) {
		return r.resolveAdMetadata(ctx, accountID, ref)
	}

	eligible, err := r.fallbackEligible(ctx, msg)
	if err != nil {
		return domain.AttributionResult{}, err
	}
	if eligible {
		return r.resolveBySimilarity(ctx, accountID, msg.Text)
	}

	return domain.AttributionResult{Method: domain.MethodUnresolved}, nil
}

func (r *Resolver) resolveAdMetadata(ctx context.Context, accountID uuid.UUID, ref *domain.AdReferral) (domain.AttributionResult, error) {
	result := domain.AttributionResult{
		Method:  domain.MethodAdMetadata,
		ClickID: ref.ClickID,
	}

	creative, err := r.creatives.CreativeByPlatformID(ctx, accountID, ref.SourceID)
	if err != nil {
		return domain.AttributionResult{}, err
	}
	if creative == nil {
		// Paid click from a creative we have not synced yet. Keep the paid
		// attribution and the click id; the creative link stays null.
		r.log.Warn("unknown creative for ad referral", "source_id", ref.SourceID, "account_id", accountID)
		return result, nil
	}

	result.CreativeID = &creative.ID
	result.DirectionID = creative.DirectionID
	result.ChannelIdentityID = creative.ChannelIdentityID
	return result, nil
}

// fallbackEligible applies the three gate conditions of the fallback
// matcher: non-empty text, not a group context, and no prior message from
// this contact inside the silence window.
func (r *Resolver) fallbackEligible(ctx context.Context, msg domain.InboundMessage) (bool, error) {
	if strings.TrimSpace(msg.Text) == "" || msg.GroupChat {
		return false, nil
	}

	last, err := r.history.LastMessageAt(ctx, msg.InstanceID, msg.Sender)
	if err != nil {
		return false, err
	}
	if last == nil {
		return true, nil
	}

	return r.now().Sub(*last) > r.silence, nil
}

func (r *Resolver) resolveBySimilarity(ctx context.Context, accountID uuid.UUID, text string) (domain.AttributionResult, error) {
	directions, err := r.creatives.ActiveDirections(ctx, accountID)
	if err != nil {
		return domain.AttributionResult{}, err
	}

	best := Match{Score: -1}
	for _, d := range directions {
		score := textmatch.Similarity(text, d.ExpectedFirstQuestion)
		if score > best.Score {
			best = Match{DirectionID: d.ID, Score: score}
		}
	}

	if best.Score < r.threshold {
		return domain.AttributionResult{Method: domain.MethodUnresolved}, nil
	}

	directionID := best.DirectionID
	return domain.AttributionResult{
		DirectionID: &directionID,
		Method:      domain.MethodTextSimilarity,
		Score:       best.Score,
	}, nil
}

// anonymizedSuffix marks contact identifiers the channel obscures; such
// identifiers cannot be messaged directly and need the real-address alias.
const anonymizedSuffix = "@lid"

// ResolveReplyAddress returns the physical address replies should go to.
// The channel-supplied real-address alias wins when present; otherwise the
// channel-specific suffix is stripped and the remainder normalized to E.164.
func ResolveReplyAddress(msg domain.InboundMessage) string {
	if msg.SenderAlias != "" {
		return phone.NormalizeE164(msg.SenderAlias)
	}

	address := msg.Sender
	if at := strings.IndexByte(address, '@'); at >= 0 {
		address = address[:at]
	}

	return phone.NormalizeE164(address)
}

// IsAnonymized reports whether the native identifier is an opaque form.
func IsAnonymized(sender string) bool {
	return strings.HasSuffix(sender, anonymizedSuffix)
}
