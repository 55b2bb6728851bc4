package onboarding

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/onboard/internal/customer"
	"github.com/kart-io/onboard/internal/kb"
)

// minimumAge is the lowest accepted applicant age.
const minimumAge = 18

// Fixed workflow replies. The wording is part of the conversational
// contract and covered by tests, so changes here are user visible.
const (
	replyGreeting     = "Hello! How can I assist you today?"
	replyOffTopic     = "I can only assist with banking onboarding."
	replyAskIdentity  = "In which country do you reside and what is your national ID number?"
	replyUnderage     = "Sorry, applicants must be 18 or older"
	replyAskPermit    = "You are non-EU citizen. Please provide your residence permit number"
	replyPermitFailed = "Residence permit verification failed"
	replyDeclined     = "Thank you for reaching out!"
	replyNoRules      = "No relevant rules found."
)

// Engine drives the onboarding protocol. Each turn loads the session
// state, applies exactly one legal transition, and persists or discards
// the state depending on whether the conversation reached a terminal
// reply.
type Engine struct {
	registry  *Registry
	customers *customer.Service
	retriever *kb.Retriever
	resolver  *BranchResolver
	sessions  SessionStore

	// now is injectable for age computation in tests.
	now func() time.Time
}

// NewEngine wires the workflow engine to its collaborators.
func NewEngine(registry *Registry, customers *customer.Service, retriever *kb.Retriever, resolver *BranchResolver, sessions SessionStore) *Engine {
	return &Engine{
		registry:  registry,
		customers: customers,
		retriever: retriever,
		resolver:  resolver,
		sessions:  sessions,
		now:       time.Now,
	}
}

// turn is the outcome of one protocol transition.
type turn struct {
	reply    string
	terminal bool
}

// HandleTurn processes one user message for the given session and returns
// the reply. Terminal replies discard the session state; all other turns
// persist it with a refreshed TTL.
func (e *Engine) HandleTurn(ctx context.Context, sessionID, message string) (string, error) {
	state, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if state == nil {
		state = NewState(sessionID)
	}

	message = strings.TrimSpace(message)

	var result turn
	switch state.Step {
	case StepAwaitingIntent:
		result = e.handleIntent(ctx, state, message)
	case StepAwaitingIdentity:
		result = e.handleIdentity(ctx, state, message)
	case StepAwaitingPermit:
		result = e.handlePermit(state, message)
	case StepAwaitingConfirmation:
		result = e.handleConfirmation(ctx, state, message)
	default:
		logger.Warnw("session in unknown step, resetting", "session_id", sessionID, "step", state.Step)
		state = NewState(sessionID)
		result = e.handleIntent(ctx, state, message)
	}

	if result.terminal {
		if err := e.sessions.Delete(ctx, sessionID); err != nil {
			logger.Warnw("failed to discard session", "session_id", sessionID, "error", err)
		}
	} else if err := e.sessions.Put(ctx, state); err != nil {
		return "", fmt.Errorf("persist session %s: %w", sessionID, err)
	}

	return result.reply, nil
}

// handleIntent classifies the opening message: greeting, policy question,
// registration intent (with or without identity details), or off topic.
func (e *Engine) handleIntent(ctx context.Context, state *State, message string) turn {
	if message == "" || isGreeting(message) {
		return turn{reply: replyGreeting, terminal: true}
	}

	country, nationalID := extractCountry(message), extractNationalID(message)
	if hasRegistrationIntent(message) || (country != "" && nationalID != "") {
		if country == "" || nationalID == "" {
			state.Step = StepAwaitingIdentity
			return turn{reply: replyAskIdentity}
		}
		return e.evaluateRegistry(ctx, state, country, nationalID)
	}

	if isPolicyQuestion(message) {
		return e.answerPolicyQuestion(ctx, message)
	}

	return turn{reply: replyOffTopic, terminal: true}
}

// handleIdentity expects a country and national id in free text and runs
// the registry evaluation once both are present.
func (e *Engine) handleIdentity(ctx context.Context, state *State, message string) turn {
	country, nationalID := extractCountry(message), extractNationalID(message)
	if country == "" || nationalID == "" {
		return turn{reply: replyAskIdentity}
	}
	return e.evaluateRegistry(ctx, state, country, nationalID)
}

// evaluateRegistry looks the applicant up in the national registry and
// walks the in-turn gates: existing customer, age, residence permit.
func (e *Engine) evaluateRegistry(ctx context.Context, state *State, country, nationalID string) turn {
	person, err := e.registry.Lookup(country, nationalID)
	if err != nil {
		var unsupported *UnsupportedCountryError
		var unknown *UnknownIDError
		if errors.As(err, &unsupported) || errors.As(err, &unknown) {
			state.Step = StepAwaitingIdentity
			return turn{reply: fmt.Sprintf("Registry lookup failed: %v. Please check the details and try again.", err)}
		}
		return turn{reply: fmt.Sprintf("Registry lookup failed: %v", err), terminal: true}
	}

	state.Country = country
	state.NationalID = nationalID
	state.KeyType = ExternalKeyType(country)
	state.Person = person

	if key, _, err := e.customers.GetByExternalKey(ctx, nationalID); err == nil {
		return turn{reply: fmt.Sprintf("You already have an account (Customer ID: %s)", key), terminal: true}
	} else if !errors.Is(err, customer.ErrRecordNotFound) {
		return turn{reply: fmt.Sprintf("Customer lookup failed: %v", err), terminal: true}
	}

	age, err := person.Age(e.now())
	if err != nil {
		return turn{reply: fmt.Sprintf("Registry data invalid: %v", err), terminal: true}
	}
	if age < minimumAge {
		return turn{reply: replyUnderage, terminal: true}
	}

	if expected, required := person.PermitNumber(); required {
		state.PermitExpected = expected
		state.Step = StepAwaitingPermit
		return turn{reply: replyAskPermit}
	}

	state.Step = StepAwaitingConfirmation
	return turn{reply: confirmationSummary(person)}
}

// handlePermit compares the user-provided permit number with the registry
// value. A mismatch ends the conversation.
func (e *Engine) handlePermit(state *State, message string) turn {
	if !VerifyPermit(message, state.PermitExpected) {
		return turn{reply: replyPermitFailed, terminal: true}
	}
	state.Step = StepAwaitingConfirmation
	return turn{reply: confirmationSummary(state.Person)}
}

// handleConfirmation waits for an explicit yes or no before creating the
// customer.
func (e *Engine) handleConfirmation(ctx context.Context, state *State, message string) turn {
	switch parseYesNo(message) {
	case "yes":
		return e.createAndRoute(ctx, state)
	case "no":
		return turn{reply: replyDeclined, terminal: true}
	default:
		return turn{reply: "Do you wish to proceed with registration? (Yes/No)"}
	}
}

// createAndRoute creates the customer (at most once per session) and then
// resolves and notifies the responsible branch. A prior successful
// creation in this session short-circuits straight to branch routing.
func (e *Engine) createAndRoute(ctx context.Context, state *State) turn {
	if state.CreatedKey == "" {
		req := buildCreateRequest(state)
		resp, err := e.customers.Create(ctx, req)
		if err != nil {
			var incomplete *customer.IncompleteError
			var conflict *customer.ConflictError
			switch {
			case errors.As(err, &incomplete):
				// The registry snapshot is the only source for these
				// fields, so a retry within the session cannot supply
				// them. End the conversation instead of looping.
				return turn{reply: fmt.Sprintf("Registration cannot be completed, required details are missing: %s. Please contact your branch.", strings.Join(incomplete.Missing, ", ")), terminal: true}
			case errors.As(err, &conflict):
				return turn{reply: fmt.Sprintf("Customer already exists with external key %s", conflict.ExternalKey), terminal: true}
			default:
				return turn{reply: fmt.Sprintf("Customer creation failed: %v", err), terminal: true}
			}
		}
		state.CreatedKey = resp.CustomerKey
	}

	location := City(state.Person.Address)
	if state.Country == "DK" {
		location = PostalCode(state.Person.Address)
	}

	resolution := e.resolver.Resolve(ctx, state.Country, location)
	if resolution.Resolved() {
		e.customers.NotifyBranch(state.CreatedKey, resolution.Email)
	}

	reply := fmt.Sprintf("Account created successfully (Customer ID: %s)\nYour assigned branch has been notified at %s",
		state.CreatedKey, resolution.Email)
	return turn{reply: reply, terminal: true}
}

// answerPolicyQuestion routes open-ended questions through the knowledge
// base and returns the retrieved text verbatim. Retrieval failures
// degrade to the empty-corpus reply instead of failing the session.
func (e *Engine) answerPolicyQuestion(ctx context.Context, message string) turn {
	hits, err := e.retriever.Search(ctx, message, 5)
	if err != nil {
		logger.Warnw("policy retrieval failed", "error", err)
		return turn{reply: replyNoRules, terminal: true}
	}
	if len(hits) == 0 {
		return turn{reply: replyNoRules, terminal: true}
	}
	return turn{reply: hits[0].Meta.Text, terminal: true}
}

// VerifyPermit checks a user-supplied residence permit number against the
// registry's expected value.
func VerifyPermit(userInput, expected string) bool {
	return strings.TrimSpace(userInput) == strings.TrimSpace(expected) && expected != ""
}

// buildCreateRequest assembles the creation payload from the registry
// snapshot collected earlier in the session.
func buildCreateRequest(state *State) *customer.CreateCustomerRequest {
	person := state.Person
	req := &customer.CreateCustomerRequest{
		Identity: customer.PersonalIdentityDto{
			Country:         state.Country,
			NationalID:      state.NationalID,
			ExternalKeyType: state.KeyType,
			FirstName:       person.FirstName,
			LastName:        person.LastName,
			DateOfBirth:     person.DateOfBirth,
			Gender:          person.Gender,
			Address:         person.Address,
			MaritalStatus:   person.MaritalStatus,
			Citizenship:     person.Citizenship,
		},
	}
	if person.Address != "" {
		req.ContactInformation = &customer.ContactInformationDto{
			Address: []customer.AddressDto{customer.ParseAddressLine(person.Address, state.Country)},
		}
	}
	return req
}

func confirmationSummary(person *RegistryPerson) string {
	return fmt.Sprintf("Identity verified: %s %s\nCitizenship: %s\nAddress: %s\nDo you wish to proceed with registration? (Yes/No)",
		person.FirstName, person.LastName, strings.Join(person.Citizenship, ", "), person.Address)
}

var (
	greetingRegex = regexp.MustCompile(`(?i)^(hi|hello|hey|good (morning|afternoon|evening))[!. ]*$`)
	digitRunRegex = regexp.MustCompile(`\d{6,}`)

	countryAliases = map[string]string{
		"denmark": "DK", "danish": "DK", "dk": "DK",
		"sweden": "SE", "swedish": "SE", "se": "SE",
		"norway": "NO", "norwegian": "NO",
		"finland": "FI", "finnish": "FI", "fi": "FI",
	}

	intentKeywords = []string{"register", "registration", "account", "onboard", "sign up", "customer"}
	policyKeywords = []string{"document", "requirement", "policy", "rule", "need", "branch"}
)

func isGreeting(message string) bool {
	return greetingRegex.MatchString(strings.TrimSpace(message))
}

func hasRegistrationIntent(message string) bool {
	lower := strings.ToLower(message)
	for _, kw := range intentKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func isPolicyQuestion(message string) bool {
	lower := strings.ToLower(message)
	if strings.Contains(lower, "?") {
		return true
	}
	for _, kw := range policyKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// extractCountry maps a country name or code mentioned in free text to
// its two-letter code. Bare "no" is ambiguous with a refusal, so the
// Norwegian code is only accepted in uppercase.
func extractCountry(message string) string {
	for _, token := range strings.Fields(message) {
		trimmed := strings.Trim(token, ".,!?\"'")
		if trimmed == "NO" {
			return "NO"
		}
		if code, ok := countryAliases[strings.ToLower(trimmed)]; ok {
			return code
		}
	}
	return ""
}

// extractNationalID pulls the national id from free text as the longest
// digit run after stripping separators.
func extractNationalID(message string) string {
	compact := strings.NewReplacer("-", "", " ", "").Replace(message)
	runs := digitRunRegex.FindAllString(compact, -1)
	longest := ""
	for _, run := range runs {
		if len(run) > len(longest) {
			longest = run
		}
	}
	return longest
}

// parseYesNo classifies a confirmation reply. Anything that is neither a
// clear yes nor a clear no returns "".
func parseYesNo(message string) string {
	switch strings.ToLower(strings.Trim(message, " .!,")) {
	case "yes", "y", "yes please", "proceed", "ok", "sure":
		return "yes"
	case "no", "n", "nope", "no thanks":
		return "no"
	default:
		return ""
	}
}
