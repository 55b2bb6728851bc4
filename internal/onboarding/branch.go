package onboarding

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"

	"github.com/kart-io/onboard/internal/kb"
	"github.com/kart-io/onboard/internal/pkg/textutil"
)

const (
	narrowBranchTopK = 3
	broadBranchTopK  = 5
)

// BranchResolution is the outcome of a branch lookup. Email is empty when
// no branch could be resolved; Reason then says why. Resolution failures
// are never fatal because branch notification is best effort.
type BranchResolution struct {
	Email  string
	Branch string
	Reason string
}

// Resolved reports whether a branch contact was found.
func (r BranchResolution) Resolved() bool {
	return r.Email != ""
}

// BranchResolver finds the responsible branch's contact address for a
// customer's country and location through the knowledge base.
type BranchResolver struct {
	retriever *kb.Retriever
}

// NewBranchResolver creates a resolver on top of the retriever.
func NewBranchResolver(retriever *kb.Retriever) *BranchResolver {
	return &BranchResolver{retriever: retriever}
}

// Resolve looks up the branch contact with a narrow query first (country
// plus postal code or city) and falls back to a country-wide query. Any
// retrieval failure is captured in the resolution reason instead of being
// returned as an error.
func (r *BranchResolver) Resolve(ctx context.Context, country, location string) BranchResolution {
	if location != "" {
		narrow := fmt.Sprintf("%s branch %s", country, location)
		if res := r.query(ctx, narrow, narrowBranchTopK); res.Resolved() {
			return res
		}
	}

	broad := fmt.Sprintf("%s branch", country)
	if res := r.query(ctx, broad, broadBranchTopK); res.Resolved() {
		return res
	}

	logger.Warnw("no branch resolved", "country", country, "location", location)
	return BranchResolution{Reason: "no branch matched the query"}
}

// query runs one retrieval pass and scans hits in rank order, preferring
// the structured email field and falling back to an email-shaped
// substring of the chunk text.
func (r *BranchResolver) query(ctx context.Context, query string, k int) BranchResolution {
	hits, err := r.retriever.Search(ctx, query, k)
	if err != nil {
		return BranchResolution{Reason: fmt.Sprintf("branch retrieval failed: %v", err)}
	}

	for _, hit := range hits {
		email := hit.Meta.Email
		if email == "" {
			email = textutil.ExtractEmail(hit.Meta.Text)
		}
		if email != "" {
			return BranchResolution{Email: email, Branch: hit.Meta.Branch}
		}
	}
	return BranchResolution{Reason: "no hit carried a contact address"}
}
