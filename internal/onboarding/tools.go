package onboarding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kart-io/onboard/internal/customer"
	"github.com/kart-io/onboard/internal/kb"
	"github.com/kart-io/onboard/internal/kb/store"
)

// Tool names exposed to driving engines.
const (
	ToolVectorRAG             = "vector_rag"
	ToolRegistryLookup        = "registry_lookup"
	ToolVerifyResidencePermit = "verify_residence_permit"
	ToolCustomerCreate        = "customer_create"
	ToolBranchLookup          = "branch_lookup"
)

// ErrUnknownTool is returned when a dispatch names a tool that does not
// exist.
var ErrUnknownTool = errors.New("unknown tool")

// ToolError is the generic error payload returned by every tool. Tools
// never surface raw errors to the driving engine.
type ToolError struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func toolError(format string, args ...any) ToolError {
	return ToolError{Status: "error", Message: fmt.Sprintf(format, args...)}
}

// ToolHit is one knowledge base hit in a tool response.
type ToolHit struct {
	ChunkID string `json:"chunk_id"`
	Source  string `json:"source"`
	Text    string `json:"text"`
	Email   string `json:"email,omitempty"`
	Region  string `json:"region,omitempty"`
	Branch  string `json:"branch,omitempty"`
}

// SearchResult is the payload of vector_rag and branch_lookup.
type SearchResult struct {
	Status  string    `json:"status"`
	Hits    []ToolHit `json:"hits"`
	Message string    `json:"message,omitempty"`
}

// RegistryLookupResult is the payload of registry_lookup.
type RegistryLookupResult struct {
	Status         string           `json:"status"`
	CustomerStatus string           `json:"customer_status"`
	CustomerKey    *string          `json:"customerKey"`
	Registry       *RegistryPayload `json:"registry"`
}

// RegistryPayload is the registry snapshot enriched with the lookup key.
type RegistryPayload struct {
	RegistryPerson
	Country         string `json:"country"`
	NationalID      string `json:"nationalId"`
	ExternalKeyType string `json:"externalKeyType"`
}

// PermitVerificationResult is the payload of verify_residence_permit.
type PermitVerificationResult struct {
	Verified   bool   `json:"verified"`
	UserInput  string `json:"user_input"`
	ExpectedRP string `json:"expected_rp"`
}

// CustomerCreateResult is the payload of customer_create.
type CustomerCreateResult struct {
	Status      string   `json:"status"`
	CustomerKey string   `json:"customerKey,omitempty"`
	Missing     []string `json:"missing,omitempty"`
	Message     string   `json:"message,omitempty"`
}

// Toolset exposes the workflow's collaborators as JSON tools for any
// driving engine that speaks the tool-call contract.
type Toolset struct {
	registry  *Registry
	customers *customer.Service
	retriever *kb.Retriever
}

// NewToolset wires the tools to their backing services.
func NewToolset(registry *Registry, customers *customer.Service, retriever *kb.Retriever) *Toolset {
	return &Toolset{
		registry:  registry,
		customers: customers,
		retriever: retriever,
	}
}

// Dispatch routes a named tool call. Input is the raw request body:
// either a JSON string or a JSON object depending on the tool. The
// returned payload is always JSON-serializable, never an error, except
// for ErrUnknownTool.
func (t *Toolset) Dispatch(ctx context.Context, name string, input json.RawMessage) (any, error) {
	switch name {
	case ToolVectorRAG:
		return t.VectorRAG(ctx, decodeStringInput(input)), nil
	case ToolRegistryLookup:
		return t.RegistryLookup(ctx, decodeStringInput(input)), nil
	case ToolVerifyResidencePermit:
		return t.VerifyResidencePermit(input), nil
	case ToolCustomerCreate:
		return t.CustomerCreate(ctx, input), nil
	case ToolBranchLookup:
		return t.BranchLookup(ctx, decodeStringInput(input)), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
}

// VectorRAG retrieves business rules from the knowledge base.
func (t *Toolset) VectorRAG(ctx context.Context, query string) any {
	hits, err := t.retriever.Search(ctx, query, 5)
	if err != nil {
		return toolError("%v", err)
	}
	if len(hits) == 0 {
		return SearchResult{Status: "ok", Hits: []ToolHit{}, Message: "No relevant rules found."}
	}

	out := make([]ToolHit, 0, len(hits))
	for _, h := range hits {
		out = append(out, ToolHit{ChunkID: h.Meta.ChunkID, Source: h.Meta.Source, Text: h.Meta.Text})
	}
	return SearchResult{Status: "ok", Hits: out}
}

// BranchLookup retrieves branch routing data, including the contact
// fields, from the knowledge base.
func (t *Toolset) BranchLookup(ctx context.Context, query string) any {
	hits, err := t.retriever.Search(ctx, query, 5)
	if err != nil {
		return toolError("%v", err)
	}
	if len(hits) == 0 {
		return SearchResult{Status: "ok", Hits: []ToolHit{}, Message: "Branch information not found."}
	}

	out := make([]ToolHit, 0, len(hits))
	for _, h := range hits {
		out = append(out, toolHitFromMeta(h.Meta))
	}
	return SearchResult{Status: "ok", Hits: out}
}

// RegistryLookup parses a "COUNTRY ID" input, queries the mock registry,
// and reports whether the person is already a customer.
func (t *Toolset) RegistryLookup(ctx context.Context, input string) any {
	country, nationalID, err := ParseRegistryInput(input)
	if err != nil {
		return toolError("%v", err)
	}

	person, err := t.registry.Lookup(country, nationalID)
	if err != nil {
		return toolError("%v", err)
	}

	status := "new"
	var customerKey *string
	if key, _, err := t.customers.GetByExternalKey(ctx, nationalID); err == nil {
		status = "existing"
		customerKey = &key
	} else if !errors.Is(err, customer.ErrRecordNotFound) {
		return toolError("%v", err)
	}

	return RegistryLookupResult{
		Status:         "ok",
		CustomerStatus: status,
		CustomerKey:    customerKey,
		Registry: &RegistryPayload{
			RegistryPerson:  *person,
			Country:         country,
			NationalID:      nationalID,
			ExternalKeyType: ExternalKeyType(country),
		},
	}
}

// VerifyResidencePermit compares a user-provided permit number against
// the expected one.
func (t *Toolset) VerifyResidencePermit(input json.RawMessage) any {
	var payload struct {
		UserInput  string `json:"user_input"`
		ExpectedRP string `json:"expected_rp"`
	}
	if err := json.Unmarshal(input, &payload); err != nil {
		return PermitVerificationResult{Verified: false}
	}

	userInput := strings.TrimSpace(payload.UserInput)
	expected := strings.TrimSpace(payload.ExpectedRP)
	return PermitVerificationResult{
		Verified:   userInput == expected && expected != "",
		UserInput:  userInput,
		ExpectedRP: expected,
	}
}

// rawCreatePayload accepts addresses as either structured objects or
// single-line strings.
type rawCreatePayload struct {
	Identity           *customer.PersonalIdentityDto `json:"identity"`
	ContactInformation *struct {
		Address []json.RawMessage `json:"address"`
	} `json:"contactInformation"`
}

// CustomerCreate validates and normalizes the creation payload, then
// calls the customer service. Single-line address strings are parsed
// into structured addresses.
func (t *Toolset) CustomerCreate(ctx context.Context, input json.RawMessage) any {
	var payload rawCreatePayload
	if err := json.Unmarshal(input, &payload); err != nil {
		return toolError("invalid json: %v", err)
	}
	if payload.Identity == nil {
		return CustomerCreateResult{Status: "incomplete", Missing: []string{"identity"}}
	}

	req := &customer.CreateCustomerRequest{Identity: *payload.Identity}

	if payload.ContactInformation != nil {
		if len(payload.ContactInformation.Address) == 0 {
			return CustomerCreateResult{Status: "incomplete", Missing: []string{"contactInformation.address (list)"}}
		}

		addresses := make([]customer.AddressDto, 0, len(payload.ContactInformation.Address))
		for _, raw := range payload.ContactInformation.Address {
			var line string
			if err := json.Unmarshal(raw, &line); err == nil {
				addresses = append(addresses, customer.ParseAddressLine(line, payload.Identity.Country))
				continue
			}

			var addr customer.AddressDto
			if err := json.Unmarshal(raw, &addr); err != nil {
				return toolError("address must be an object or a string")
			}
			addresses = append(addresses, addr)
		}
		req.ContactInformation = &customer.ContactInformationDto{Address: addresses}
	}

	resp, err := t.customers.Create(ctx, req)
	if err != nil {
		var incomplete *customer.IncompleteError
		var conflict *customer.ConflictError
		switch {
		case errors.As(err, &incomplete):
			return CustomerCreateResult{Status: "incomplete", Missing: incomplete.Missing}
		case errors.As(err, &conflict):
			return CustomerCreateResult{Status: "conflict", Message: conflict.Error()}
		default:
			return toolError("%v", err)
		}
	}
	return CustomerCreateResult{Status: "created", CustomerKey: resp.CustomerKey}
}

// ParseRegistryInput splits a "COUNTRY ID" string. The country may be
// glued to the id ("DK0101901234"); the id keeps digits only.
func ParseRegistryInput(input string) (country, nationalID string, err error) {
	input = strings.Trim(strings.TrimSpace(input), `"'`)
	if len(input) < 4 {
		return "", "", errors.New("input too short for COUNTRY ID")
	}

	parts := strings.SplitN(input, " ", 2)
	if len(parts) == 2 {
		country, nationalID = parts[0], parts[1]
	} else {
		country, nationalID = input[:2], input[2:]
	}
	country = strings.ToUpper(strings.TrimSpace(country))

	nationalID = strings.NewReplacer(" ", "", "-", "").Replace(nationalID)
	if m := firstDigitRun(nationalID); m != "" {
		nationalID = m
	}

	supported := false
	for _, c := range SupportedCountries {
		if country == c {
			supported = true
			break
		}
	}
	if !supported {
		return "", "", fmt.Errorf("invalid country %q, allowed: %s", country, strings.Join(SupportedCountries, ", "))
	}
	return country, nationalID, nil
}

// decodeStringInput accepts either a JSON-encoded string or raw text.
func decodeStringInput(input json.RawMessage) string {
	var s string
	if err := json.Unmarshal(input, &s); err == nil {
		return s
	}
	return strings.Trim(strings.TrimSpace(string(input)), `"'`)
}

func firstDigitRun(s string) string {
	start := -1
	for i, r := range s {
		if r >= '0' && r <= '9' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			return s[start:i]
		}
	}
	if start >= 0 {
		return s[start:]
	}
	return ""
}

func toolHitFromMeta(meta store.ChunkMetadata) ToolHit {
	return ToolHit{
		ChunkID: meta.ChunkID,
		Source:  meta.Source,
		Text:    meta.Text,
		Email:   meta.Email,
		Region:  meta.Region,
		Branch:  meta.Branch,
	}
}
