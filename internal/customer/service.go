package customer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kart-io/logger"
	"github.com/oklog/ulid/v2"
)

// IncompleteError reports which required fields are missing from a
// creation request.
type IncompleteError struct {
	Missing []string
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("incomplete customer request, missing %v", e.Missing)
}

// ConflictError reports an attempt to create a customer that already
// exists under the same external key.
type ConflictError struct {
	ExternalKey string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("customer already exists with external key %s", e.ExternalKey)
}

// Service implements personal customer creation and lookup on top of the
// record store.
type Service struct {
	store    *Store
	validate *validator.Validate
	// entropy is locked because Create is called from concurrent
	// request handlers.
	entropy *ulid.LockedMonotonicReader
}

// NewService creates a customer service backed by the given store.
func NewService(store *Store) *Service {
	return &Service{
		store:    store,
		validate: validator.New(),
		entropy: &ulid.LockedMonotonicReader{
			MonotonicReader: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		},
	}
}

// requiredIdentityFields must be present before a customer can be created.
var requiredIdentityFields = []struct {
	name  string
	value func(*PersonalIdentityDto) string
}{
	{"identity.country", func(id *PersonalIdentityDto) string { return id.Country }},
	{"identity.nationalId", func(id *PersonalIdentityDto) string { return id.NationalID }},
	{"identity.externalKeyType", func(id *PersonalIdentityDto) string { return id.ExternalKeyType }},
	{"identity.firstName", func(id *PersonalIdentityDto) string { return id.FirstName }},
	{"identity.lastName", func(id *PersonalIdentityDto) string { return id.LastName }},
}

// Create validates the request and persists a new customer. It returns an
// IncompleteError when required fields are missing and a ConflictError
// when a customer with the same national id already exists.
func (s *Service) Create(ctx context.Context, req *CreateCustomerRequest) (*CreateCustomerResponse, error) {
	var missing []string
	for _, f := range requiredIdentityFields {
		if f.value(&req.Identity) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return nil, &IncompleteError{Missing: missing}
	}

	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("customer request validation: %w", err)
	}

	externalKey := req.Identity.NationalID
	if _, err := s.store.GetByExternalKey(ctx, externalKey); err == nil {
		return nil, &ConflictError{ExternalKey: externalKey}
	} else if !errors.Is(err, ErrRecordNotFound) {
		return nil, err
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal customer request: %w", err)
	}

	customerKey := ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
	rec := &Record{
		CustomerKey: customerKey,
		ExternalKey: externalKey,
		Data:        string(data),
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist customer: %w", err)
	}

	logger.Infow("customer created", "customer_key", customerKey, "country", req.Identity.Country)

	return &CreateCustomerResponse{CustomerKey: customerKey}, nil
}

// GetByExternalKey looks up an existing customer by national id. It
// returns the customer key and the originally stored request, or
// ErrRecordNotFound.
func (s *Service) GetByExternalKey(ctx context.Context, externalKey string) (string, *CreateCustomerRequest, error) {
	rec, err := s.store.GetByExternalKey(ctx, externalKey)
	if err != nil {
		return "", nil, err
	}

	var req CreateCustomerRequest
	if err := json.Unmarshal([]byte(rec.Data), &req); err != nil {
		return "", nil, fmt.Errorf("decode customer record %s: %w", rec.CustomerKey, err)
	}
	return rec.CustomerKey, &req, nil
}

// NotifyBranch simulates sending a notification to the responsible
// branch. Delivery is best effort and never fails the caller.
func (s *Service) NotifyBranch(customerKey, branchEmail string) {
	logger.Infow("branch notified", "customer_key", customerKey, "branch_email", branchEmail)
}
